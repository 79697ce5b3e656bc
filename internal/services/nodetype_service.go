package services

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"nodeflow/internal/database"
	"nodeflow/internal/models"
)

// NodeTypeService reads and writes node type definitions. The engine
// only reads; create/update exists for admin tooling.
type NodeTypeService struct {
	db *database.DB
}

// NewNodeTypeService creates a new node type service
func NewNodeTypeService(db *database.DB) *NodeTypeService {
	return &NodeTypeService{db: db}
}

func scanNodeType(row interface{ Scan(...any) error }) (*models.NodeTypeDefinition, error) {
	var nt models.NodeTypeDefinition
	var inputSchema, outputSchema, parameters string
	var description, category sql.NullString
	err := row.Scan(&nt.ID, &nt.Name, &nt.Version, &description, &nt.Script,
		&inputSchema, &outputSchema, &parameters, &category, &nt.IsAsync)
	if err != nil {
		return nil, err
	}
	nt.Description = description.String
	nt.Category = category.String
	if err := json.Unmarshal([]byte(inputSchema), &nt.InputSchema); err != nil {
		nt.InputSchema = map[string]any{}
	}
	if err := json.Unmarshal([]byte(outputSchema), &nt.OutputSchema); err != nil {
		nt.OutputSchema = map[string]any{}
	}
	if err := json.Unmarshal([]byte(parameters), &nt.Parameters); err != nil {
		nt.Parameters = nil
	}
	return &nt, nil
}

const nodeTypeColumns = `id, name, version, description, script, input_schema, output_schema, parameters, category, is_async`

// GetByName returns the node type with the given unique name
func (s *NodeTypeService) GetByName(name string) (*models.NodeTypeDefinition, error) {
	row := s.db.QueryRow(`SELECT `+nodeTypeColumns+` FROM node_types WHERE name = ?`, name)
	nt, err := scanNodeType(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node type %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node type %q: %w", name, err)
	}
	return nt, nil
}

// List returns all node type definitions
func (s *NodeTypeService) List() ([]*models.NodeTypeDefinition, error) {
	rows, err := s.db.Query(`SELECT ` + nodeTypeColumns + ` FROM node_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list node types: %w", err)
	}
	defer rows.Close()

	var result []*models.NodeTypeDefinition
	for rows.Next() {
		nt, err := scanNodeType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, nt)
	}
	return result, rows.Err()
}

// Upsert creates or replaces a node type definition by name
func (s *NodeTypeService) Upsert(nt *models.NodeTypeDefinition) error {
	inputSchema, _ := json.Marshal(nt.InputSchema)
	outputSchema, _ := json.Marshal(nt.OutputSchema)
	parameters, _ := json.Marshal(nt.Parameters)

	_, err := s.db.Exec(`
		INSERT INTO node_types (name, version, description, script, input_schema, output_schema, parameters, category, is_async)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			description = excluded.description,
			script = excluded.script,
			input_schema = excluded.input_schema,
			output_schema = excluded.output_schema,
			parameters = excluded.parameters,
			category = excluded.category,
			is_async = excluded.is_async`,
		nt.Name, nt.Version, nt.Description, nt.Script,
		string(inputSchema), string(outputSchema), string(parameters), nt.Category, nt.IsAsync)
	if err != nil {
		return fmt.Errorf("failed to upsert node type %q: %w", nt.Name, err)
	}
	return nil
}
