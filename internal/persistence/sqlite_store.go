package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/crewflow/crewflow/pkg/api"
)

// SQLiteStore implements SpecStore, InstanceStore, StateStore and
// EventStore on a single SQLite database.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ SpecStore = (*SQLiteStore)(nil)

var _ InstanceStore = (*SQLiteStore)(nil)

var _ StateStore = (*SQLiteStore)(nil)

var _ EventStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_specs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS flow_instances (
			id TEXT PRIMARY KEY,
			spec_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			state BLOB,
			failed_crew_id TEXT,
			failed_task_id TEXT,
			error TEXT
		);
		CREATE TABLE IF NOT EXISTS flow_state (
			instance_id TEXT NOT NULL,
			variable TEXT NOT NULL,
			value BLOB,
			PRIMARY KEY (instance_id, variable)
		);
		CREATE TABLE IF NOT EXISTS flow_events (
			instance_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			spec_id TEXT,
			crew_id TEXT,
			task_id TEXT,
			detail TEXT
		);`,
	)
	return err
}

func (s *SQLiteStore) SaveSpec(spec *api.FlowSpecification) error {
	payload, err := EncodeValue(spec)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO flow_specs (id, name, payload)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, payload = excluded.payload`,
		spec.ID,
		spec.Name,
		payload,
	)
	return err
}

func (s *SQLiteStore) GetSpec(id string) (*api.FlowSpecification, error) {
	row := s.db.QueryRow(`SELECT payload FROM flow_specs WHERE id = ?`, id)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSpecNotFound
		}
		return nil, err
	}

	return DecodeValue[*api.FlowSpecification](payload)
}

func (s *SQLiteStore) ListSpecs() ([]*api.FlowSpecification, error) {
	rows, err := s.db.Query(`SELECT payload FROM flow_specs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.FlowSpecification
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		spec, err := DecodeValue[*api.FlowSpecification](payload)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveInstance(inst *api.FlowInstance) error {
	state, err := EncodeValue(inst.State)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO flow_instances (id, spec_id, name, status, state, failed_crew_id, failed_task_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.SpecID,
		inst.Name,
		string(inst.Status),
		state,
		inst.FailedCrewID,
		inst.FailedTaskID,
		errString(inst.Err),
	)
	return err
}

func (s *SQLiteStore) UpdateInstance(inst *api.FlowInstance) error {
	state, err := EncodeValue(inst.State)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE flow_instances
		SET spec_id = ?, name = ?, status = ?, state = ?, failed_crew_id = ?, failed_task_id = ?, error = ?
		WHERE id = ?`,
		inst.SpecID,
		inst.Name,
		string(inst.Status),
		state,
		inst.FailedCrewID,
		inst.FailedTaskID,
		errString(inst.Err),
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

func (s *SQLiteStore) GetInstance(id string) (*api.FlowInstance, error) {
	row := s.db.QueryRow(`
		SELECT id, spec_id, name, status, state, failed_crew_id, failed_task_id, error
		FROM flow_instances
		WHERE id = ?`,
		id,
	)
	return scanInstance(row)
}

func (s *SQLiteStore) ListInstances(filter InstanceFilter) ([]*api.FlowInstance, error) {
	query := `
		SELECT id, spec_id, name, status, state, failed_crew_id, failed_task_id, error
		FROM flow_instances`
	var args []any
	var clauses []string

	if filter.SpecID != "" {
		clauses = append(clauses, "spec_id = ?")
		args = append(args, filter.SpecID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.FlowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*api.FlowInstance, error) {
	var inst api.FlowInstance
	var statusStr string
	var state []byte
	var failedCrew, failedTask, errStr sql.NullString

	if err := row.Scan(&inst.ID, &inst.SpecID, &inst.Name, &statusStr, &state, &failedCrew, &failedTask, &errStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.FailedCrewID = failedCrew.String
	inst.FailedTaskID = failedTask.String

	stateVal, err := DecodeValue[map[string]any](state)
	if err != nil {
		return nil, err
	}
	inst.State = stateVal

	if errStr.Valid && errStr.String != "" {
		inst.Err = errors.New(errStr.String)
	}

	return &inst, nil
}

func (s *SQLiteStore) SaveStateRecords(records []api.StateRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		value, err := EncodeValue(rec.Value)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO flow_state (instance_id, variable, value)
			VALUES (?, ?, ?)
			ON CONFLICT (instance_id, variable) DO UPDATE SET value = excluded.value`,
			rec.FlowInstanceID,
			rec.Variable,
			value,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetState(instanceID string) (map[string]any, error) {
	rows, err := s.db.Query(`SELECT variable, value FROM flow_state WHERE instance_id = ?`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var variable string
		var value []byte
		if err := rows.Scan(&variable, &value); err != nil {
			return nil, err
		}
		v, err := DecodeValue[any](value)
		if err != nil {
			return nil, err
		}
		out[variable] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.FlowEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_events (instance_id, at, type, spec_id, crew_id, task_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.InstanceID,
		ev.At.UnixNano(),
		string(ev.Type),
		ev.SpecID,
		ev.CrewID,
		ev.TaskID,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, instanceID string) ([]api.FlowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, at, type, spec_id, crew_id, task_id, detail
		FROM flow_events
		WHERE instance_id = ?
		ORDER BY at`,
		instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.FlowEvent
	for rows.Next() {
		var ev api.FlowEvent
		var at int64
		var typ string
		if err := rows.Scan(&ev.InstanceID, &at, &typ, &ev.SpecID, &ev.CrewID, &ev.TaskID, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, at)
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
