package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/pathfinder/internal/catalog"
	"github.com/abhisek/pathfinder/internal/profile"
	"github.com/abhisek/pathfinder/internal/store"
)

// seedFile is the on-disk format for students and their assessment
// history.
type seedFile struct {
	Students    []profile.Student `yaml:"students"`
	Assessments []seedAssessment  `yaml:"assessments"`
}

type seedAssessment struct {
	StudentID string `yaml:"student_id"`

	profile.AssessmentRecord `yaml:",inline"`
}

func parseSeed(data []byte) (seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return seedFile{}, fmt.Errorf("decode seed: %w", err)
	}
	for _, s := range f.Students {
		if s.ID == "" {
			return seedFile{}, errors.New("student without id")
		}
	}
	for _, a := range f.Assessments {
		if a.StudentID == "" || a.ID == "" {
			return seedFile{}, fmt.Errorf("assessment %q: student_id and id are required", a.ID)
		}
	}
	return f, nil
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a course catalog and student records from YAML",
	Example: `  pathfinder import --catalog courses.yaml
  pathfinder import --students students.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogPath, _ := cmd.Flags().GetString("catalog")
		studentsPath, _ := cmd.Flags().GetString("students")
		if catalogPath == "" && studentsPath == "" {
			return errors.New("nothing to import: pass --catalog and/or --students")
		}

		a, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()
		if catalogPath != "" {
			n, err := importCatalog(ctx, a.store, catalogPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Imported %d courses.\n", n)
		}
		if studentsPath != "" {
			data, err := os.ReadFile(studentsPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", studentsPath, err)
			}
			seed, err := parseSeed(data)
			if err != nil {
				return err
			}
			students, added, skipped, err := importSeed(ctx, a.store, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Imported %d students and %d assessments (%d already recorded).\n", students, added, skipped)
		}
		return nil
	},
}

// importCatalog stores the courses after checking that the merged
// catalog still forms a valid prerequisite graph.
func importCatalog(ctx context.Context, st *store.Store, path string) (int, error) {
	courses, err := catalog.LoadFile(path)
	if err != nil {
		return 0, err
	}
	existing, err := st.Catalog().Courses(ctx)
	if err != nil {
		return 0, err
	}
	merged := make(map[string]catalog.Course, len(existing)+len(courses))
	for _, c := range existing {
		merged[c.ID] = c
	}
	for _, c := range courses {
		merged[c.ID] = c
	}
	all := make([]catalog.Course, 0, len(merged))
	for _, c := range merged {
		all = append(all, c)
	}
	if _, err := catalog.Load(all, catalog.LoadOptions{AllowDrafts: true}); err != nil {
		return 0, fmt.Errorf("catalog %s: %w", path, err)
	}
	if err := st.Catalog().PutCourses(ctx, courses); err != nil {
		return 0, err
	}
	return len(courses), nil
}

func importSeed(ctx context.Context, st *store.Store, seed seedFile) (students, added, skipped int, err error) {
	for _, s := range seed.Students {
		if err := st.Students().PutStudent(ctx, s); err != nil {
			return students, added, skipped, err
		}
		students++
	}
	for _, a := range seed.Assessments {
		err := st.Assessments().AppendAssessment(ctx, a.StudentID, a.AssessmentRecord)
		switch {
		case errors.Is(err, store.ErrDuplicateAssessment):
			skipped++
		case err != nil:
			return students, added, skipped, err
		default:
			added++
		}
	}
	return students, added, skipped, nil
}

func init() {
	importCmd.Flags().String("catalog", "", "YAML course catalog (courses: [...])")
	importCmd.Flags().String("students", "", "YAML students and assessments (students: [...], assessments: [...])")
}
