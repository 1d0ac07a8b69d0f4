package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/ini.v1"
)

// Credentials identify the MyBMW account and region. Immutable after
// Load; sourced once at startup.
type Credentials struct {
	Email     string
	Password  string
	Region    string
	SessionID string
}

// Overrides carries values supplied on the command line. They take
// precedence over environment variables, which take precedence over the
// config file.
type Overrides struct {
	Email    string
	Password string
	Region   string
}

// Load resolves credentials from flags, environment and the ~/.bmw INI
// file. The config file is optional; a missing file is not an error.
func Load(flags Overrides) (*Credentials, error) {
	section, err := loadSection()
	if err != nil {
		return nil, err
	}

	creds := &Credentials{
		Email:     firstOf(flags.Email, os.Getenv("BMW_EMAIL"), section.email),
		Password:  firstOf(flags.Password, os.Getenv("BMW_PASSWORD"), section.password),
		Region:    firstOf(flags.Region, os.Getenv("BMW_GEO"), section.region, "na"),
		SessionID: firstOf(os.Getenv("BMW_SESSION"), section.session),
	}

	// A stable session id per account is preferred (set it in ~/.bmw),
	// but a per-process one works.
	if creds.SessionID == "" {
		creds.SessionID = uuid.NewString()
	}

	return creds, nil
}

type fileSection struct {
	email    string
	password string
	region   string
	session  string
}

func loadSection() (fileSection, error) {
	path := configPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fileSection{}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return fileSection{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	section := file.Section(sectionName())
	return fileSection{
		email:    section.Key("email").String(),
		password: section.Key("password").String(),
		region:   section.Key("geo").String(),
		session:  section.Key("session").String(),
	}, nil
}

// configPath returns the INI file path, honoring BMW_PATH.
func configPath() string {
	if p := os.Getenv("BMW_PATH"); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".bmw"
	}

	return filepath.Join(home, ".bmw")
}

// sectionName returns the INI section to read, honoring BMW_SECTION.
func sectionName() string {
	if s := os.Getenv("BMW_SECTION"); s != "" {
		return s
	}
	return "default"
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
