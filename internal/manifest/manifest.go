// Package manifest loads the dependency manifest handed to the installer.
//
// The format belongs to the installer: one requirement specifier per line,
// "#" comments, trailing-backslash continuations, and option lines that
// start with "-" (for example "-r other.txt" or "--index-url ..."). This
// package only reads enough of it to report what is declared and to tell
// an empty manifest from an absent one. Installation itself is delegated.
package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shinji-kodama/venv-bootstrap/internal/model"
)

// Requirement is one declared package.
type Requirement struct {
	// Name is the distribution name as written (e.g. "fastapi").
	Name string

	// Spec is everything after the name: extras, version constraints,
	// environment markers (e.g. "[standard]>=0.29").
	Spec string

	// Line is the 1-based line on which the requirement starts.
	Line int
}

// String renders the requirement as it appeared in the manifest.
func (r Requirement) String() string {
	return r.Name + r.Spec
}

// Manifest is the parsed content of a dependency manifest.
type Manifest struct {
	// Path is the manifest location as given by the caller.
	Path string

	// Requirements are the declared packages in file order.
	Requirements []Requirement

	// Options are installer option lines in file order.
	Options []string

	// SHA256 is the hex digest of the raw file content.
	SHA256 string
}

// IsEmpty reports whether the manifest declares nothing for the installer.
func (m *Manifest) IsEmpty() bool {
	return len(m.Requirements) == 0 && len(m.Options) == 0
}

// namePattern matches the leading distribution name of a requirement line.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// Load reads and parses the manifest at path.
//
// An absent manifest is an error carrying model.ExitManifestNotFound; an
// empty file is a valid, empty manifest.
func Load(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitManifestNotFound,
				fmt.Sprintf("dependency manifest not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, model.NewCLIError(model.ExitManifestNotFound,
			fmt.Sprintf("dependency manifest %s is a directory", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse parses manifest content. Path is left empty.
func Parse(data []byte) (*Manifest, error) {
	sum := sha256.Sum256(data)
	m := &Manifest{SHA256: hex.EncodeToString(sum[:])}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var (
		logical   strings.Builder
		startLine int
		lineNo    int
	)

	flush := func() {
		line := strings.TrimSpace(logical.String())
		logical.Reset()
		if line == "" {
			return
		}
		if strings.HasPrefix(line, "-") {
			m.Options = append(m.Options, line)
			return
		}
		name := namePattern.FindString(line)
		if name == "" {
			// URLs and local paths are legal installer input; keep them whole.
			m.Requirements = append(m.Requirements, Requirement{Name: line, Line: startLine})
			return
		}
		m.Requirements = append(m.Requirements, Requirement{
			Name: name,
			Spec: strings.TrimSpace(line[len(name):]),
			Line: startLine,
		})
	}

	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if logical.Len() == 0 {
			startLine = lineNo
		} else {
			line = strings.TrimLeft(line, " \t")
		}

		if strings.HasSuffix(line, `\`) {
			logical.WriteString(strings.TrimSuffix(line, `\`))
			logical.WriteByte(' ')
			continue
		}
		logical.WriteString(line)
		flush()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// A trailing continuation at EOF still ends the logical line.
	flush()

	return m, nil
}

// stripComment removes a "#" comment. Like the installer, "#" only starts a
// comment at the beginning of a line or after whitespace, so URL fragments
// such as "pkg @ https://host/x.whl#sha256=..." survive.
func stripComment(line string) string {
	for i, r := range line {
		if r != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return strings.TrimRight(line, " \t")
}

// Names returns the declared distribution names in file order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	return names
}
