package filesource

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/pdok/mosaic/actor"
)

// MBTiles reads tiles from an MBTiles file. Missing tiles have no content.
type MBTiles struct {
	db        *sql.DB
	stmt      *sql.Stmt
	scheduler actor.Scheduler
}

// OpenMBTiles opens path read-only. Reads run on scheduler.
func OpenMBTiles(path string, scheduler actor.Scheduler) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not open %s as mbtiles: %w", path, err)
	}
	return &MBTiles{db: db, stmt: stmt, scheduler: scheduler}, nil
}

func (m *MBTiles) Close() error {
	return errors.Join(m.stmt.Close(), m.db.Close())
}

// Metadata returns the name/value pairs of the metadata table.
func (m *MBTiles) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}
	return metadata, rows.Err()
}

func (m *MBTiles) Request(resource Resource, callback func(Response)) Request {
	req := &request{}
	m.scheduler.Schedule(func() {
		if req.cancelled.Load() {
			return
		}
		req.respond(callback, m.read(resource))
	})
	return req
}

func (m *MBTiles) read(resource Resource) Response {
	if resource.Kind != Tile {
		return Response{Error: &ResponseError{Reason: NotFound, Message: "mbtiles only holds tiles"}}
	}
	id := resource.TileID
	row := (uint32(1) << id.Z) - 1 - id.Y // XYZ -> TMS
	var data []byte
	err := m.stmt.QueryRow(id.Z, id.X, row).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Response{NoContent: true}
	case err != nil:
		return Response{Error: &ResponseError{Reason: Other, Message: err.Error()}}
	case len(data) == 0:
		return Response{NoContent: true}
	default:
		return Response{Data: data}
	}
}
