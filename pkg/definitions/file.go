package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var extensions = []string{".yaml", ".yml", ".json"}

// workflowDocument is the on-disk shape: a definition plus its goals.
type workflowDocument struct {
	models.WorkflowDefinition `json:",inline" yaml:",inline"`

	Goals []*models.GoalDefinition `json:"goals,omitempty" yaml:"goals,omitempty" validate:"dive"`
}

// FileStore reads definitions from a directory laid out as
//
//	{root}/workflows/{id}.yaml          current version and its goals
//	{root}/workflows/{id}@{version}.yaml retained older versions
//
// JSON files are accepted wherever YAML is.
type FileStore struct {
	root     string
	validate *validator.Validate
}

// NewFileStore creates a store rooted at root. A file:// prefix is stripped.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		root:     strings.TrimPrefix(root, "file://"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *FileStore) CurrentDefinition(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	document, err := s.load(workflowID)
	if err != nil {
		return nil, err
	}

	return &document.WorkflowDefinition, nil
}

func (s *FileStore) WorkflowDefinition(_ context.Context, workflowID string, version int) (*models.WorkflowDefinition, error) {
	document, err := s.load(workflowID)
	if err != nil {
		return nil, err
	}

	if document.Version == version {
		return &document.WorkflowDefinition, nil
	}

	document, err = s.load(workflowID + "@" + strconv.Itoa(version))
	if err != nil {
		return nil, err
	}

	if document.Version != version {
		return nil, fmt.Errorf("workflow %s: file for version %d declares version %d: %w",
			workflowID, version, document.Version, persistence.ErrDefinitionNotFound)
	}

	return &document.WorkflowDefinition, nil
}

func (s *FileStore) ActiveGoals(_ context.Context, workflowID string) ([]*models.GoalDefinition, error) {
	document, err := s.load(workflowID)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return []*models.GoalDefinition{}, nil
		}

		return nil, err
	}

	goals := make([]*models.GoalDefinition, 0, len(document.Goals))

	for _, goal := range document.Goals {
		if goal.Active {
			goals = append(goals, goal)
		}
	}

	return goals, nil
}

func (s *FileStore) load(name string) (*workflowDocument, error) {
	for _, extension := range extensions {
		filePath := filepath.Clean(filepath.Join(s.root, "workflows", name+extension))

		body, err := os.ReadFile(filePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to read workflow %s: %w", name, err)
		}

		document, err := decode(body, extension)
		if err != nil {
			return nil, fmt.Errorf("failed to decode workflow %s: %w", name, err)
		}

		err = s.prepare(document)
		if err != nil {
			return nil, fmt.Errorf("invalid workflow %s: %w", name, err)
		}

		return document, nil
	}

	return nil, fmt.Errorf("workflow %s: %w", name, persistence.ErrDefinitionNotFound)
}

func (s *FileStore) prepare(document *workflowDocument) error {
	for _, goal := range document.Goals {
		if goal.WorkflowID == "" {
			goal.WorkflowID = document.ID
		}

		if goal.TenantID == "" {
			goal.TenantID = document.TenantID
		}
	}

	err := s.validate.Struct(document)
	if err != nil {
		return err
	}

	return document.Normalize()
}

func decode(body []byte, extension string) (*workflowDocument, error) {
	var document workflowDocument

	if extension == ".json" {
		err := json.Unmarshal(body, &document)

		return &document, err
	}

	err := yaml.Unmarshal(body, &document)

	return &document, err
}
