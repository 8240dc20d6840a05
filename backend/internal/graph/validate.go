package graph

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "emergent-kg/backend/pkg/errors"
)

// NodeKinds is the known kind vocabulary. Kinds outside it are accepted
// and score with the default compatibility.
var NodeKinds = []string{
	"decision", "observation", "insight", "artifact", "question", "code",
	"prediction", "concept", "finding", "synthesis", "experiment", "persona", "tool",
}

// NodeInput is a node appended by a collaborator. The id is allocated from
// the document counter.
type NodeInput struct {
	Kind    string   `json:"type" binding:"required" validate:"required,max=64"`
	Label   string   `json:"label" binding:"required" validate:"required,max=500"`
	Content string   `json:"content" validate:"max=20000"`
	Source  string   `json:"source" binding:"required" validate:"required,max=64"`
	Tags    []string `json:"tags" validate:"max=64,dive,required,max=64"`
}

// EdgeInput is an edge appended by a collaborator.
type EdgeInput struct {
	From     string `json:"from" binding:"required" validate:"required"`
	To       string `json:"to" binding:"required" validate:"required,nefield=From"`
	Relation string `json:"relation" binding:"required" validate:"required,max=64"`
	Label    string `json:"label" validate:"max=500"`
}

var validate = validator.New()

// Validate checks field constraints on a node append.
func (in NodeInput) Validate() error {
	return structErr(validate.Struct(in))
}

// Validate checks field constraints on an edge append. Endpoint existence is
// checked against the document by the store.
func (in EdgeInput) Validate() error {
	return structErr(validate.Struct(in))
}

func structErr(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return apperrors.NewInvalidInput("input", err.Error())
	}
	first := verrs[0]
	return apperrors.NewInvalidInput(strings.ToLower(first.Field()), fmt.Sprintf("failed %q constraint", first.Tag()))
}
