package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/condpush/internal/schema"
)

// LoadResult contains the model loaded for a command.
type LoadResult struct {
	Model     *schema.Model
	Source    string // schema directory, or "embedded"
	FileCount int    // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadModel loads the schema model from dir, or returns the embedded model
// when dir is empty.
//
// Directory problems come back as a single LoadError. A model that loads but
// fails validation returns one LoadError per problem.
func LoadModel(dir string) (*LoadResult, []error) {
	if dir == "" {
		return &LoadResult{Model: schema.Default(), Source: "embedded"}, nil
	}

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	model, err := schema.Load(dir)
	if err != nil {
		return nil, convertSchemaError(err)
	}

	return &LoadResult{Model: model, Source: dir, FileCount: len(cueFiles)}, nil
}

// FindCUEFiles returns the .cue files directly inside dir. CUE packages do
// not span subdirectories, so the walk stops at the first level.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertSchemaError splits a schema failure into LoadErrors with position
// info where the schema package recorded one.
func convertSchemaError(err error) []error {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		out := make([]error, 0, len(merr.Errors))
		for _, e := range merr.Errors {
			out = append(out, &LoadError{Code: ErrCodeInvalidSchema, Message: e.Error()})
		}
		return out
	}

	var schemaErr *schema.Error
	if errors.As(err, &schemaErr) {
		return []error{&LoadError{
			Code:    MapFieldToErrorCode(schemaErr.Field),
			Message: schemaErr.Message,
			Pos:     schemaErr.Pos,
		}}
	}

	return []error{&LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Schema errors
	ErrCodeInvalidSchema = "E101" // Cross-entity validation failed
	ErrCodeNoEntities    = "E102" // No entity struct
	ErrCodeInvalidField  = "E103" // Bad field type or scale
	ErrCodeInvalidMember = "E104" // Bad reference or collection

	// Query errors
	ErrCodeParse     = "E201" // Expression or query text does not parse
	ErrCodeRewrite   = "E202" // Pushdown failed
	ErrCodeTranslate = "E203" // SQL translation failed
	ErrCodeExecute   = "E204" // Dataset seeding or execution failed
)

// MapFieldToErrorCode maps a schema error field to an error code.
func MapFieldToErrorCode(field string) string {
	prefix, _, _ := strings.Cut(field, ".")
	switch prefix {
	case "entity":
		return ErrCodeNoEntities
	case "cue":
		return ErrCodeBuildFailed
	case "fields":
		return ErrCodeInvalidField
	case "references", "collections":
		return ErrCodeInvalidMember
	default:
		return ErrCodeGeneric
	}
}
