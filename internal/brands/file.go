package brands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 500 * time.Millisecond

var validate = validator.New()

type brandFile struct {
	Brands []models.Brand `yaml:"brands" validate:"dive"`
}

// FileProvider loads brands from a YAML file and can reload it on change
type FileProvider struct {
	catalog
	path     string
	reloads  atomic.Int64
	debounce time.Duration
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider loads and validates path. An invalid file is an error.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path, debounce: reloadDebounce}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FileProvider) GetBrand(_ context.Context, id string) (*models.Brand, error) {
	return p.get(id)
}

func (p *FileProvider) ListBrands(_ context.Context) ([]*models.Brand, error) {
	return p.list(), nil
}

// Reloads is the number of successful loads, including the initial one
func (p *FileProvider) Reloads() int64 {
	return p.reloads.Load()
}

// Reload re-reads the file. On error the current brands are kept.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read brands file %s: %w", p.path, err)
	}

	brands, err := Parse(data)
	if err != nil {
		return fmt.Errorf("invalid brands file %s: %w", p.path, err)
	}

	p.replace(brands)
	p.reloads.Add(1)
	logrus.Infof("Loaded %d brands from %s", len(brands), p.path)
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are handled.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", p.path, err)
	}

	go p.watchLoop(ctx, watcher)
	logrus.Infof("Watching %s for brand changes", p.path)
	return nil
}

func (p *FileProvider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(p.path)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			logrus.WithFields(logrus.Fields{
				"file":      event.Name,
				"operation": event.Op.String(),
			}).Debug("Brands file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(p.debounce, func() {
				if err := p.Reload(); err != nil {
					logrus.Errorf("Keeping previous brands: %v", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logrus.Errorf("Brands file watcher error: %v", err)
		}
	}
}

// Parse decodes and validates a brands document
func Parse(data []byte) ([]models.Brand, error) {
	var doc brandFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(doc.Brands) == 0 {
		return nil, errors.New("no brands defined")
	}

	if err := validate.Struct(doc); err != nil {
		return nil, formatValidationError(err)
	}

	seen := make(map[string]struct{}, len(doc.Brands))
	for i := range doc.Brands {
		b := &doc.Brands[i]
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("duplicate brand id %q", b.ID)
		}
		seen[b.ID] = struct{}{}

		if err := validateChannels(b); err != nil {
			return nil, fmt.Errorf("brand %s: %w", b.ID, err)
		}
		if len(b.KeywordTexts()) == 0 {
			return nil, fmt.Errorf("brand %s: keywords are blank", b.ID)
		}
	}

	return doc.Brands, nil
}

// validateChannels checks that every enabled channel has a destination
func validateChannels(b *models.Brand) error {
	ch := b.Channels
	switch {
	case ch.Slack.Enabled && ch.Slack.WebhookURL == "":
		return errors.New("slack is enabled without a webhook_url")
	case ch.Teams.Enabled && ch.Teams.WebhookURL == "":
		return errors.New("teams is enabled without a webhook_url")
	case ch.Email.Enabled && len(ch.Email.Recipients) == 0:
		return errors.New("email is enabled without recipients")
	case ch.Pager.Enabled && ch.Pager.RoutingKey == "":
		return errors.New("pager is enabled without a routing_key")
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := e.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}

		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", field, e.Param()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", field))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
