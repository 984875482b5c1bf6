package nickname

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"welcome-gate/internal/platform"
	"welcome-gate/internal/platform/platformtest"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	malePrefix   = "(단팥빵)"
	femalePrefix = "(메론빵)"
)

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Name: "@everyone", Position: 0},
			{ID: "r-male", Name: "단팥빵", Position: 1},
			{ID: "r-female", Name: "메론빵", Position: 2},
			{ID: "r-bot", Name: "gate", Position: 5, Permissions: discordgo.PermissionManageNicknames},
			{ID: "r-staff", Name: "staff", Position: 7},
		},
	}
}

func member(id, username string, roles ...string) *discordgo.Member {
	return &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: id, Username: username}, Roles: roles}
}

func newNormalizer() *Normalizer {
	return New([]Rule{
		{RoleName: "단팥빵", Prefix: malePrefix},
		{RoleName: "메론빵", Prefix: femalePrefix},
	}, zap.NewNop())
}

func newClient(t *testing.T, members ...*discordgo.Member) *platformtest.Fake {
	t.Helper()
	fake := platformtest.New("bot")
	fake.AddGuild(testGuild())
	fake.AddMember(member("bot", "gate", "r-bot"))
	for _, m := range members {
		fake.AddMember(m)
	}
	return fake
}

func TestDeriveAddsRolePrefix(t *testing.T) {
	n := newNormalizer()

	nick, err := n.Derive(testGuild(), member("u1", "minsu", "r-male"))
	require.NoError(t, err)
	assert.Equal(t, malePrefix+" minsu", nick)

	nick, err = n.Derive(testGuild(), member("u2", "jiwoo", "r-female"))
	require.NoError(t, err)
	assert.Equal(t, femalePrefix+" jiwoo", nick)
}

func TestDeriveIsIdempotent(t *testing.T) {
	n := newNormalizer()
	m := member("u1", "minsu", "r-male")

	nick, err := n.Derive(testGuild(), m)
	require.NoError(t, err)
	m.Nick = nick

	_, err = n.Derive(testGuild(), m)
	assert.ErrorIs(t, err, ErrAlreadyPrefixed)
}

func TestDeriveCheckOrder(t *testing.T) {
	n := newNormalizer()

	owner := member("owner", "boss")
	owner.Nick = malePrefix + " boss"
	_, err := n.Derive(testGuild(), owner)
	assert.ErrorIs(t, err, ErrAlreadyPrefixed)

	_, err = n.Derive(testGuild(), member("owner", "boss"))
	assert.ErrorIs(t, err, ErrNoGenderRole)

	_, err = n.Derive(testGuild(), member("owner", "boss", "r-female"))
	assert.ErrorIs(t, err, ErrServerOwner)
}

func TestDeriveTruncatesToLimit(t *testing.T) {
	n := New([]Rule{{RoleName: "단팥빵", Prefix: "[M1]"}}, zap.NewNop())
	long := strings.Repeat("a", 40)

	nick, err := n.Derive(testGuild(), member("u1", long, "r-male"))
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(nick), MaxLength)
	assert.True(t, strings.HasPrefix(nick, "[M1] "))
}

func TestComposeCountsRunes(t *testing.T) {
	nick := Compose(malePrefix, strings.Repeat("가", 40))
	assert.Equal(t, MaxLength, utf8.RuneCountInString(nick))
	assert.True(t, strings.HasPrefix(nick, malePrefix+" "))
}

func TestCleanNameStripsStalePrefixes(t *testing.T) {
	n := newNormalizer()
	assert.Equal(t, "minsu", n.CleanName("  "+malePrefix+" "+femalePrefix+"minsu "))
}

func TestApplyEditsNickname(t *testing.T) {
	target := member("u1", "minsu", "r-male")
	fake := newClient(t, target)

	nick, err := newNormalizer().Apply(context.Background(), fake, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, malePrefix+" minsu", nick)
	assert.Equal(t, nick, fake.Nicknames[platform.MemberKey{GuildID: "g1", UserID: "u1"}])
}

func TestSetRejectsHierarchyWithoutEditing(t *testing.T) {
	target := member("u1", "staffer", "r-staff", "r-male")
	fake := newClient(t, target)

	_, err := newNormalizer().Apply(context.Background(), fake, "g1", "u1")
	assert.ErrorIs(t, err, ErrHierarchy)
	assert.True(t, IsRuntime(err))
	assert.Empty(t, fake.Nicknames)
}

func TestSetRequiresManageNicknames(t *testing.T) {
	fake := platformtest.New("bot")
	guild := testGuild()
	guild.Roles[3].Permissions = 0
	fake.AddGuild(guild)
	fake.AddMember(member("bot", "gate", "r-bot"))
	target := member("u1", "minsu", "r-male")
	fake.AddMember(target)

	err := newNormalizer().Set(context.Background(), fake, guild, target, "x")
	assert.ErrorIs(t, err, ErrNoPermission)
	assert.Empty(t, fake.Nicknames)
}

func TestSetRejectsOwner(t *testing.T) {
	owner := member("owner", "boss")
	fake := newClient(t, owner)

	err := newNormalizer().Set(context.Background(), fake, testGuild(), owner, "x")
	assert.ErrorIs(t, err, ErrServerOwner)
	assert.False(t, IsRuntime(err))
}

func TestSetPropagatesClientErrors(t *testing.T) {
	target := member("u1", "minsu", "r-male")
	fake := newClient(t, target)
	fake.NicknameErr = platform.ErrForbidden

	err := newNormalizer().Set(context.Background(), fake, testGuild(), target, "x")
	assert.True(t, errors.Is(err, platform.ErrForbidden))
	assert.True(t, IsRuntime(err))
}
