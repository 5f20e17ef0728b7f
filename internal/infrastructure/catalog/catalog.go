// Package catalog loads the read-only catalogs (achievements, leagues and
// lesson content) from YAML and writes them into the stat store.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/beanwise/learning-engine/internal/domain/achievement"
	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/lesson"
)

//go:embed seeds/default.yaml
var seeds embed.FS

// LessonSeed is a lesson with its exercises.
type LessonSeed struct {
	lesson.Lesson `yaml:",inline"`
	Exercises     []lesson.Exercise `yaml:"exercises"`
}

// File is the YAML document layout.
type File struct {
	Achievements []achievement.Achievement `yaml:"achievements"`
	Leagues      []league.League           `yaml:"leagues"`
	Lessons      []LessonSeed              `yaml:"lessons"`
}

// Validate checks ids, condition types and league tiers.
func (f *File) Validate() error {
	var errs []error

	codes := make(map[string]bool)
	for _, a := range f.Achievements {
		if a.ID == "" || a.Code == "" {
			errs = append(errs, fmt.Errorf("achievement %q: id and code are required", a.Code))
		}
		if codes[a.Code] {
			errs = append(errs, fmt.Errorf("achievement %q: duplicate code", a.Code))
		}
		codes[a.Code] = true
		if !a.ConditionType.IsKnown() {
			errs = append(errs, fmt.Errorf("achievement %q: unknown condition %q", a.Code, a.ConditionType))
		}
	}

	tiers := make(map[int]bool)
	for _, l := range f.Leagues {
		if l.ID == "" {
			errs = append(errs, errors.New("league: id is required"))
		}
		if tiers[l.Tier] {
			errs = append(errs, fmt.Errorf("league %q: duplicate tier %d", l.ID, l.Tier))
		}
		tiers[l.Tier] = true
	}

	for _, s := range f.Lessons {
		if err := s.Lesson.Validate(); err != nil {
			errs = append(errs, err)
		}
		for _, e := range s.Exercises {
			if e.ID == "" || e.CorrectAnswer == "" {
				errs = append(errs, fmt.Errorf("lesson %q: exercise needs id and answer", s.ID))
			}
		}
	}

	return errors.Join(errs...)
}

// Parse decodes and validates a catalog document.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid: %w", err)
	}
	return &f, nil
}

// Load reads a catalog from path. An empty path loads the built-in seed.
func Load(path string) (*File, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if path == "" {
		r, err = seeds.Open("seeds/default.yaml")
	} else {
		r, err = os.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	defer r.Close()
	return Parse(r)
}

// Writers are the catalog sinks. Nil writers are skipped.
type Writers struct {
	Achievements achievement.CatalogWriter
	Leagues      league.CatalogWriter
	Lessons      lesson.CatalogWriter
}

// SeedResult counts written records.
type SeedResult struct {
	Achievements int
	Leagues      int
	Lessons      int
}

// Seed upserts every record. It stops at the first failing write.
func Seed(ctx context.Context, f *File, w Writers) (SeedResult, error) {
	var res SeedResult

	if w.Leagues != nil {
		for _, l := range f.Leagues {
			if err := w.Leagues.UpsertLeague(ctx, l); err != nil {
				return res, err
			}
			res.Leagues++
		}
	}
	if w.Achievements != nil {
		for _, a := range f.Achievements {
			if err := w.Achievements.UpsertAchievement(ctx, a); err != nil {
				return res, err
			}
			res.Achievements++
		}
	}
	if w.Lessons != nil {
		for _, s := range f.Lessons {
			exercises := make([]lesson.Exercise, len(s.Exercises))
			for i, e := range s.Exercises {
				e.LessonID = s.ID
				exercises[i] = e
			}
			if err := w.Lessons.UpsertLesson(ctx, s.Lesson, exercises); err != nil {
				return res, err
			}
			res.Lessons++
		}
	}
	return res, nil
}
