package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sprintdeck/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// SQLite implements Storage over database/sql with the modernc driver.
type SQLite struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLite(conn *sql.DB) *SQLite {
	return &SQLite{DB: conn, Now: time.Now}
}

func (s *SQLite) now() string {
	if s.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return s.Now().UTC().Format(time.RFC3339)
}

func (s *SQLite) Close() error { return s.DB.Close() }

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64Ptr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Ownership expressions. Rows with no owner belong to the single-user scope
// (empty owner id).
const (
	ownedExpr       = `COALESCE(owner_id,'')=?`
	phaseOwnedExpr  = `project_id IN (SELECT id FROM projects WHERE COALESCE(owner_id,'')=?)`
	sprintOwnedExpr = `phase_id IN (SELECT ph.id FROM phases ph JOIN projects p ON ph.project_id=p.id WHERE COALESCE(p.owner_id,'')=?)`
	runOwnedExpr    = `sprint_id IN (SELECT s.id FROM sprints s JOIN phases ph ON s.phase_id=ph.id JOIN projects p ON ph.project_id=p.id WHERE COALESCE(p.owner_id,'')=?)`
)

// Projects

const projectCols = `id,name,COALESCE(path,''),COALESCE(description,''),is_active,created_at,updated_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	var active int
	err := row.Scan(&p.ID, &p.Name, &p.Path, &p.Description, &active, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.IsActive = active != 0
	return p, err
}

func (s *SQLite) ListProjects(ctx context.Context, ownerID string, activeOnly bool) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects WHERE ` + ownedExpr
	args := []any{ownerID}
	if activeOnly {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQLite) GetProject(ctx context.Context, ownerID string, id int64) (domain.Project, error) {
	return scanProject(s.DB.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id=? AND `+ownedExpr, id, ownerID))
}

func (s *SQLite) CreateProject(ctx context.Context, ownerID string, data CreateProjectData) (domain.Project, error) {
	now := s.now()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO projects(owner_id,name,path,description,is_active,created_at,updated_at) VALUES (?,?,?,?,1,?,?)`,
		nullable(ownerID), data.Name, nullable(data.Path), nullable(data.Description), now, now)
	if err != nil {
		return domain.Project{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Project{}, err
	}
	return s.GetProject(ctx, ownerID, id)
}

func (s *SQLite) UpdateProject(ctx context.Context, ownerID string, id int64, data UpdateProjectData) (domain.Project, error) {
	var fields []string
	var args []any
	if data.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *data.Name)
	}
	if data.Path != nil {
		fields = append(fields, "path=?")
		args = append(args, nullable(*data.Path))
	}
	if data.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*data.Description))
	}
	if data.IsActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, boolInt(*data.IsActive))
	}
	if len(fields) == 0 {
		return s.GetProject(ctx, ownerID, id)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, s.now(), id, ownerID)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE projects SET %s WHERE id=? AND `+ownedExpr, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.Project{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Project{}, ErrNotFound
	}
	return s.GetProject(ctx, ownerID, id)
}

func (s *SQLite) DeleteProject(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=? AND `+ownedExpr, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Tags

func (s *SQLite) ListTags(ctx context.Context, ownerID string) ([]domain.Tag, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,name,color FROM tags WHERE `+ownedExpr+` ORDER BY name ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *SQLite) CreateTag(ctx context.Context, ownerID, name, color string) (domain.Tag, error) {
	if color == "" {
		color = "#3b82f6"
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO tags(owner_id,name,color) VALUES (?,?,?)`,
		nullable(ownerID), name, color)
	if err != nil {
		return domain.Tag{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Tag{}, err
	}
	return domain.Tag{ID: id, Name: name, Color: color}, nil
}

func (s *SQLite) DeleteTag(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tags WHERE id=? AND `+ownedExpr, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Tickets

const ticketCols = `id,project_id,phase_id,sprint_id,title,COALESCE(description,''),status,priority,position,start_date,due_date,created_at,updated_at`

func scanTicket(row interface{ Scan(...any) error }) (domain.Ticket, error) {
	var t domain.Ticket
	var projectID, phaseID, sprintID sql.NullInt64
	var startDate, dueDate sql.NullString
	err := row.Scan(&t.ID, &projectID, &phaseID, &sprintID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.Position, &startDate, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.Int64
	}
	if phaseID.Valid {
		t.PhaseID = &phaseID.Int64
	}
	if sprintID.Valid {
		t.SprintID = &sprintID.Int64
	}
	if startDate.Valid {
		t.StartDate = &startDate.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, nil
}

func (s *SQLite) ListTickets(ctx context.Context, ownerID string, f TicketFilters) ([]domain.Ticket, error) {
	clauses := []string{ownedExpr}
	args := []any{ownerID}
	if f.ProjectID != 0 {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.PhaseID != 0 {
		clauses = append(clauses, "phase_id=?")
		args = append(args, f.PhaseID)
	}
	if f.SprintID != 0 {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.TagID != 0 {
		clauses = append(clauses, "id IN (SELECT ticket_id FROM ticket_tags WHERE tag_id=?)")
		args = append(args, f.TagID)
	}
	query := `SELECT ` + ticketCols + ` FROM tickets WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY status ASC, position ASC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		tags, err := s.ticketTags(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Tags = tags
	}
	return res, nil
}

func (s *SQLite) GetTicket(ctx context.Context, ownerID string, id int64) (domain.Ticket, error) {
	t, err := scanTicket(s.DB.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets WHERE id=? AND `+ownedExpr, id, ownerID))
	if err != nil {
		return t, err
	}
	tags, err := s.ticketTags(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.Tags = tags
	return t, nil
}

func (s *SQLite) ticketTags(ctx context.Context, ticketID int64) ([]domain.Tag, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT t.id,t.name,t.color FROM tags t JOIN ticket_tags tt ON tt.tag_id=t.id WHERE tt.ticket_id=? ORDER BY t.name ASC`,
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *SQLite) CreateTicket(ctx context.Context, ownerID string, data CreateTicketData) (domain.Ticket, error) {
	status := data.Status
	if status == "" {
		status = domain.TicketBacklog
	}
	now := s.now()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()

	var position int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position)+1,0) FROM tickets WHERE status=? AND `+ownedExpr,
		string(status), ownerID).Scan(&position); err != nil {
		return domain.Ticket{}, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets(owner_id,project_id,phase_id,sprint_id,title,description,status,priority,position,start_date,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		nullable(ownerID), nullableInt64Ptr(data.ProjectID), nullableInt64Ptr(data.PhaseID), nullableInt64Ptr(data.SprintID),
		data.Title, nullable(data.Description), string(status), data.Priority, position,
		nullableStringPtr(data.StartDate), nullableStringPtr(data.DueDate), now, now)
	if err != nil {
		return domain.Ticket{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Ticket{}, err
	}
	for _, tagID := range data.TagIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ticket_tags(ticket_id,tag_id) VALUES (?,?)`, id, tagID); err != nil {
			return domain.Ticket{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	return s.GetTicket(ctx, ownerID, id)
}

func (s *SQLite) UpdateTicket(ctx context.Context, ownerID string, id int64, data UpdateTicketData) (domain.Ticket, error) {
	var fields []string
	var args []any
	if data.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *data.Title)
	}
	if data.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*data.Description))
	}
	if data.ProjectID != nil {
		fields = append(fields, "project_id=?")
		args = append(args, nullableInt64Ptr(data.ProjectID))
	}
	if data.PhaseID != nil {
		fields = append(fields, "phase_id=?")
		args = append(args, nullableInt64Ptr(data.PhaseID))
	}
	if data.SprintID != nil {
		fields = append(fields, "sprint_id=?")
		args = append(args, nullableInt64Ptr(data.SprintID))
	}
	if data.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*data.Status))
	}
	if data.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *data.Priority)
	}
	if data.Position != nil {
		fields = append(fields, "position=?")
		args = append(args, *data.Position)
	}
	if data.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, nullable(*data.StartDate))
	}
	if data.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullable(*data.DueDate))
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if len(fields) > 0 {
		fields = append(fields, "updated_at=?")
		args = append(args, s.now(), id, ownerID)
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE tickets SET %s WHERE id=? AND `+ownedExpr, strings.Join(fields, ", ")), args...)
		if err != nil {
			return domain.Ticket{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Ticket{}, ErrNotFound
		}
	}
	if data.TagsSet {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_tags WHERE ticket_id=?`, id); err != nil {
			return domain.Ticket{}, err
		}
		for _, tagID := range data.TagIDs {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ticket_tags(ticket_id,tag_id) VALUES (?,?)`, id, tagID); err != nil {
				return domain.Ticket{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	return s.GetTicket(ctx, ownerID, id)
}

func (s *SQLite) DeleteTicket(ctx context.Context, ownerID string, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tickets WHERE id=? AND `+ownedExpr, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Event log

func (s *SQLite) AppendEvent(ctx context.Context, ownerID, evtType, entityKind string, entityID int64, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO events(owner_id,ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		nullable(ownerID), s.now(), evtType, entityKind, entityID, string(data))
	return err
}

func (s *SQLite) ListEvents(ctx context.Context, ownerID, entityKind string, entityID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{ownedExpr}
	args := []any{ownerID}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != 0 {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,entity_kind,entity_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// API keys

func (s *SQLite) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.CreatedAt == "" {
		key.CreatedAt = s.now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO api_keys(id,owner_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.OwnerID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

func (s *SQLite) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id,owner_id,COALESCE(name,''),key_hash,created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash)
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

func (s *SQLite) ListAPIKeys(ctx context.Context, ownerID string) ([]domain.APIKey, error) {
	query := `SELECT id,owner_id,COALESCE(name,''),key_hash,created_at FROM api_keys`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.OwnerID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLite) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
