// Package archive models the output tree of archive units and writes it to disk.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// DescriptorName is the metadata descriptor file written into every unit directory.
const DescriptorName = "__ArchiveUnitMetadata.xml"

const descriptorRoot = "ArchiveUnit"

// Usage roles for binary objects.
const (
	RoleBinaryMaster = "BinaryMaster"
	RoleTextContent  = "TextContent"
)

const (
	maxComponentBytes = 255
	maxPathBytes      = 4096
)

// ErrPathTooLong matches write errors that were most likely caused by path length.
var ErrPathTooLong = errors.New("archive: path too long")

// WriteError reports a failed directory creation or file write for one unit.
type WriteError struct {
	Op          string
	Path        string
	Unit        string
	PathTooLong bool
	Err         error
}

func (e *WriteError) Error() string {
	if e.PathTooLong {
		return fmt.Sprintf("archive: %s %s for unit %s: path likely too long, reduce the name length: %v", e.Op, e.Path, e.Unit, e.Err)
	}
	return fmt.Sprintf("archive: %s %s for unit %s: %v", e.Op, e.Path, e.Unit, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Is(target error) bool {
	return target == ErrPathTooLong && e.PathTooLong
}

// Object is a binary object attached to a unit.
type Object struct {
	Filename string
	Role     string
	Version  int
	Data     []byte
}

// Unit is one node of the archive tree: a folder, a message or an attachment holder.
type Unit struct {
	rootPath     string
	name         string
	nameLength   int
	meta         Metadata
	objects      []Object
	forceMessage bool
}

// NewUnit creates a unit with a literal name below rootPath.
func NewUnit(rootPath, name string) *Unit {
	return &Unit{rootPath: rootPath, name: name, nameLength: DefaultNameLength}
}

func (u *Unit) Name() string {
	return u.name
}

func (u *Unit) RootPath() string {
	return u.rootPath
}

// Metadata returns the unit's metadata list for appending.
func (u *Unit) Metadata() *Metadata {
	return &u.meta
}

// Objects returns the objects attached so far.
func (u *Unit) Objects() []Object {
	return u.objects
}

// MarkMessage forces the content-bearing directory form even without objects.
func (u *Unit) MarkMessage() {
	u.forceMessage = true
}

// AddObject attaches a binary object with the given usage role and version.
func (u *Unit) AddObject(filename, role string, version int, data []byte) {
	u.objects = append(u.objects, Object{Filename: filename, Role: role, Version: version, Data: data})
}

// DirName is the on-disk directory name. Content bearing units are wrapped in double underscores.
func (u *Unit) DirName() string {
	if len(u.objects) > 0 || u.forceMessage {
		return "__" + u.name + "__"
	}
	return u.name
}

// Dir is the full directory path of the unit, the root path for its children.
func (u *Unit) Dir() string {
	return filepath.Join(u.rootPath, u.DirName())
}

// ObjectFilename is the file name an object is written under.
func (u *Unit) ObjectFilename(o Object) string {
	name := SanitizeFilename(o.Filename, u.nameLength)
	if name == "" {
		name = "undefined"
	}
	return "__" + o.Role + "_" + strconv.Itoa(o.Version) + "_" + name
}

// Write creates the unit directory and writes the descriptor and every object.
// Each call rewrites the files.
func (u *Unit) Write() error {
	dir := u.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return u.writeError("create directory", dir, err)
	}

	var buf bytes.Buffer
	if err := u.meta.Render(&buf, descriptorRoot); err != nil {
		return u.writeError("render descriptor", dir, err)
	}
	descriptor := filepath.Join(dir, DescriptorName)
	if err := os.WriteFile(descriptor, buf.Bytes(), 0o644); err != nil {
		return u.writeError("write descriptor", descriptor, err)
	}

	for _, o := range u.objects {
		path := filepath.Join(dir, u.ObjectFilename(o))
		if err := os.WriteFile(path, o.Data, 0o644); err != nil {
			return u.writeError("write object", path, err)
		}
	}
	return nil
}

func (u *Unit) writeError(op, path string, err error) error {
	return &WriteError{
		Op:          op,
		Path:        path,
		Unit:        u.name,
		PathTooLong: likelyPathTooLong(path, err),
		Err:         err,
	}
}

func likelyPathTooLong(path string, err error) bool {
	if errors.Is(err, syscall.ENAMETOOLONG) {
		return true
	}
	if len(path) > maxPathBytes {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > maxComponentBytes {
			return true
		}
	}
	return false
}
