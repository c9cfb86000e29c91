// Package profiles persists non-secret account and use-case profiles.
//
// Directory layout:
//
//	{dir}/account-{name}.json
//	{dir}/usecase-{name}.json
//	{dir}/active.json
//
// Profiles never carry secrets. Unknown keys in profile files are ignored
// when loading.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

const (
	DefaultAccount = "dev"
	DefaultUseCase = "blob2sf-default"

	accountPrefix = "account-"
	usecasePrefix = "usecase-"
	activeFile    = "active.json"
)

var (
	ErrNotFound    = errors.New("profile not found")
	ErrInvalidName = errors.New("invalid profile name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store is a directory-backed profile store.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Listing is the result of List.
type Listing struct {
	Accounts []string              `json:"accounts"`
	UseCases []string              `json:"usecases"`
	Active   models.ActiveProfiles `json:"active"`
}

// Save writes both profiles and marks them active. Empty names fall back to
// the defaults. It returns the paths written.
func (s *Store) Save(account models.AccountProfile, usecase models.UseCaseProfile) (string, string, error) {
	if account.Name == "" {
		account.Name = DefaultAccount
	}
	if usecase.Name == "" {
		usecase.Name = DefaultUseCase
	}
	if err := checkName(account.Name); err != nil {
		return "", "", err
	}
	if err := checkName(usecase.Name); err != nil {
		return "", "", err
	}

	acctPath := s.path(accountPrefix, account.Name)
	ucPath := s.path(usecasePrefix, usecase.Name)
	if err := writeJSON(acctPath, account); err != nil {
		return "", "", fmt.Errorf("save account profile: %w", err)
	}
	if err := writeJSON(ucPath, usecase); err != nil {
		return "", "", fmt.Errorf("save usecase profile: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, activeFile), models.ActiveProfiles{Account: account.Name, UseCase: usecase.Name}); err != nil {
		return "", "", fmt.Errorf("save active profiles: %w", err)
	}

	log.Info().
		Str("account", account.Name).
		Str("usecase", usecase.Name).
		Msg("Profiles saved and activated")
	return acctPath, ucPath, nil
}

// Activate marks an existing profile pair as active.
func (s *Store) Activate(account, usecase string) error {
	if err := checkName(account); err != nil {
		return err
	}
	if err := checkName(usecase); err != nil {
		return err
	}
	if _, err := os.Stat(s.path(accountPrefix, account)); err != nil {
		return fmt.Errorf("account %q: %w", account, ErrNotFound)
	}
	if _, err := os.Stat(s.path(usecasePrefix, usecase)); err != nil {
		return fmt.Errorf("usecase %q: %w", usecase, ErrNotFound)
	}
	return writeJSON(filepath.Join(s.dir, activeFile), models.ActiveProfiles{Account: account, UseCase: usecase})
}

// List returns the names of all saved profiles plus the active pair.
func (s *Store) List() (*Listing, error) {
	out := &Listing{Accounts: []string{}, UseCases: []string{}}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		switch {
		case strings.HasPrefix(base, accountPrefix):
			out.Accounts = append(out.Accounts, strings.TrimPrefix(base, accountPrefix))
		case strings.HasPrefix(base, usecasePrefix):
			out.UseCases = append(out.UseCases, strings.TrimPrefix(base, usecasePrefix))
		}
	}
	sort.Strings(out.Accounts)
	sort.Strings(out.UseCases)

	active, err := s.readActive()
	if err != nil {
		return nil, err
	}
	out.Active = active
	return out, nil
}

// Active loads the active profile pair. Missing files yield empty profiles;
// a malformed file is an error.
func (s *Store) Active() (models.Profiles, error) {
	var p models.Profiles
	active, err := s.readActive()
	if err != nil {
		return p, err
	}
	if active.Account != "" && checkName(active.Account) == nil {
		if err := readJSON(s.path(accountPrefix, active.Account), &p.Account); err != nil && !os.IsNotExist(err) {
			return p, fmt.Errorf("load account profile: %w", err)
		}
		p.Account.Name = active.Account
	}
	if active.UseCase != "" && checkName(active.UseCase) == nil {
		if err := readJSON(s.path(usecasePrefix, active.UseCase), &p.UseCase); err != nil && !os.IsNotExist(err) {
			return p, fmt.Errorf("load usecase profile: %w", err)
		}
		p.UseCase.Name = active.UseCase
	}
	return p, nil
}

func (s *Store) readActive() (models.ActiveProfiles, error) {
	var a models.ActiveProfiles
	if err := readJSON(filepath.Join(s.dir, activeFile), &a); err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return a, fmt.Errorf("load active profiles: %w", err)
	}
	return a, nil
}

func (s *Store) path(prefix, name string) string {
	return filepath.Join(s.dir, prefix+name+".json")
}

func checkName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// writeJSON writes via a temp file and rename so readers never see a torn file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Redact returns a preview of a secret value: the first and last four
// characters around an ellipsis, or a fixed mask for short values.
func Redact(v string) string {
	if v == "" {
		return ""
	}
	if len(v) > 8 {
		return v[:4] + "…" + v[len(v)-4:]
	}
	return "•••"
}

// RedactMap applies Redact to every value.
func RedactMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Redact(v)
	}
	return out
}
