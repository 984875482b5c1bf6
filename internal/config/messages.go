package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Messages struct {
	Settings        Settings        `yaml:"settings"`
	WelcomeMessages WelcomeMessages `yaml:"welcome_messages"`
}

type Settings struct {
	MaleRoleName    string `yaml:"male_role_name"`
	FemaleRoleName  string `yaml:"female_role_name"`
	MalePrefix      string `yaml:"male_prefix"`
	FemalePrefix    string `yaml:"female_prefix"`
	WelcomeCategory string `yaml:"welcome_category"`
}

type WelcomeMessages struct {
	InitialWelcome   Template `yaml:"initial_welcome"`
	AdaptationCheck  Template `yaml:"adaptation_check"`
	ActivityReminder Template `yaml:"activity_reminder"`
	ActivityWarning  Template `yaml:"activity_warning"`
}

// Template is one embed. Description and field values may carry the
// {member_mention}, {member_name} and {seconds} placeholders.
type Template struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	FieldName   string `yaml:"field_name"`
	FieldValue  string `yaml:"field_value"`
	Footer      string `yaml:"footer"`
}

// ColorValue parses the hex color, accepting "#", "0x" or bare digits.
func (t Template) ColorValue() int {
	raw := strings.TrimSpace(t.Color)
	raw = strings.TrimPrefix(raw, "#")
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 16, 32)
	if err != nil {
		return 0
	}
	return int(value)
}

// LoadMessages reads the message file. JSON input parses as YAML.
func LoadMessages(path string) (Messages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Messages{}, fmt.Errorf("read messages %s: %w", path, err)
	}
	var msgs Messages
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return Messages{}, fmt.Errorf("parse messages %s: %w", path, err)
	}
	if msgs.Settings.WelcomeCategory == "" {
		return Messages{}, fmt.Errorf("messages %s: settings.welcome_category is required", path)
	}
	return msgs, nil
}
