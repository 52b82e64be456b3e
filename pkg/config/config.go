// Package config loads pipeline documents written in YAML.
//
// A document describes the pipeline steps, the source adapters they read from and the shuttle
// backing the cache. It is validated on load; building the pipeline itself is left to
// pipeline.Load.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDocument = errors.New("invalid document")

var (
	validate = validator.New()
	nameRe   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	_ = validate.RegisterValidation("stepname", func(fl validator.FieldLevel) bool {
		return nameRe.MatchString(fl.Field().String())
	})
}

// Document is the YAML pipeline document.
type Document struct {
	Name        string   `yaml:"name" validate:"omitempty,stepname"`
	Mode        string   `yaml:"mode" validate:"omitempty,oneof=sequential parallel"`
	Workers     int      `yaml:"workers" validate:"gte=0"`
	DefaultTTL  Duration `yaml:"default_ttl" validate:"gte=0"`
	RunTimeout  Duration `yaml:"run_timeout" validate:"gte=0"`
	EventsTopic string   `yaml:"events_topic"`
	Cache       Cache    `yaml:"cache"`
	Sources     []Source `yaml:"sources" validate:"unique=Name,dive"`
	Steps       []Step   `yaml:"steps" validate:"required,min=1,dive"`
}

// Cache selects the shuttle backend.
type Cache struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory badger"`
	// Path is the badger directory.
	Path          string   `yaml:"path" validate:"required_if=Backend badger"`
	SweepInterval Duration `yaml:"sweep_interval" validate:"gte=0"`
	GCInterval    Duration `yaml:"gc_interval" validate:"gte=0"`
	// GCDiscardRatio defaults to shuttle.DefaultGCDiscardRatio when unset.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"omitempty,gt=0,lt=1"`
}

// Source declares a named source adapter.
type Source struct {
	Name string `yaml:"name" validate:"required,stepname"`
	Kind string `yaml:"kind" validate:"required,oneof=static http kv"`

	// static
	Rows []map[string]any `yaml:"rows"`

	// http
	URL         string            `yaml:"url" validate:"required_if=Kind http,omitempty,url"`
	Headers     map[string]string `yaml:"headers"`
	RateLimit   float64           `yaml:"rate_limit" validate:"gte=0"`
	Burst       int               `yaml:"burst" validate:"gte=0"`
	Timeout     Duration          `yaml:"timeout" validate:"gte=0"`
	RecordsPath string            `yaml:"records_path"`
	// MaxRetries counts the attempts made after a transport error, a 5xx or a 429.
	MaxRetries    int      `yaml:"max_retries" validate:"gte=0"`
	RetryInterval Duration `yaml:"retry_interval" validate:"gte=0"`

	// kv
	Path string `yaml:"path" validate:"required_if=Kind kv"`
}

// Step declares a pipeline step. Source steps name a source, the others a transform.
type Step struct {
	Name      string         `yaml:"name" validate:"required,stepname"`
	Kind      string         `yaml:"kind" validate:"required,oneof=source transform aggregate"`
	Source    string         `yaml:"source" validate:"required_if=Kind source,excluded_unless=Kind source"`
	Transform string         `yaml:"transform" validate:"required_unless=Kind source,excluded_if=Kind source"`
	Query     string         `yaml:"query"`
	Params    map[string]any `yaml:"params"`
	DependsOn []string       `yaml:"depends_on" validate:"dive,stepname"`
	Cache     StepCache      `yaml:"cache"`
	Optional  bool           `yaml:"optional"`
	Timeout   Duration       `yaml:"timeout" validate:"gte=0"`
	Priority  float64        `yaml:"priority"`
}

// StepCache is the cache policy of a step.
type StepCache struct {
	Enabled bool     `yaml:"enabled"`
	TTL     Duration `yaml:"ttl" validate:"gte=0"`
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", path)
	}

	return doc, nil
}

// Parse decodes and validates a document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	doc := &Document{}
	if err := dec.Decode(doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrInvalidDocument, "document is empty")
		}

		return nil, errors.Wrap(ErrInvalidDocument, err.Error())
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks the document against its field rules.
func (d *Document) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "unable to validate document")
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Document.")
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: failed %s", field, fe.Tag())
		}
	}

	return errors.Wrap(ErrInvalidDocument, strings.Join(msgs, "; "))
}
