// Package layout discovers session recordings under a study directory.
//
// The expected structure is <base>/<task>/<group>/<subject>/<file>, so group
// and subject are taken from the directory names directly above the file.
// Files found at any other depth are reported as violations instead of being
// attributed to a guessed group or subject.
package layout

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultPattern matches EyeLink ASCII exports.
const DefaultPattern = "*.asc"

// Session is one recording file with its layout-derived identifiers.
type Session struct {
	Task    string `json:"task"`
	Group   string `json:"group"`
	Subject string `json:"subject"`
	Path    string `json:"path"`
}

// Violation is a matching file that does not fit the layout contract.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Discover walks <base>/<task> and returns sessions sorted by path, plus any
// matching files outside the task/group/subject/file structure.
func Discover(base, task, pattern string) ([]Session, []Violation, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, nil, goerr.Wrap(err, "invalid file pattern", goerr.V("pattern", pattern))
	}

	root := filepath.Join(base, task)
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "task directory unavailable", goerr.V("path", root))
	}
	if !info.IsDir() {
		return nil, nil, goerr.New("task path is not a directory", goerr.V("path", root))
	}

	var sessions []Session
	var violations []Violation
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		s, reason := classify(task, rel)
		if reason != "" {
			violations = append(violations, Violation{Path: path, Reason: reason})
			return nil
		}
		s.Path = path
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to walk task directory", goerr.V("path", root))
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Path < sessions[j].Path })
	sort.Slice(violations, func(i, j int) bool { return violations[i].Path < violations[j].Path })
	return sessions, violations, nil
}

// FromPath derives a Session from a file path by locating the task directory
// among its ancestors. Used for single-file commands.
func FromPath(base, task, path string) (Session, error) {
	rel, err := filepath.Rel(filepath.Join(base, task), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Session{}, goerr.New("file is not under the task directory",
			goerr.V("path", path), goerr.V("task", task))
	}
	s, reason := classify(task, rel)
	if reason != "" {
		return Session{}, goerr.New(reason, goerr.V("path", path))
	}
	s.Path = path
	return s, nil
}

func classify(task, rel string) (Session, string) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) < 3:
		return Session{}, "file is above the group/subject level"
	case len(parts) > 3:
		return Session{}, "file is nested below the subject directory"
	}
	return Session{Task: task, Group: parts[0], Subject: parts[1]}, ""
}
