package store

import (
	"context"
	"database/sql"

	"github.com/untoldecay/bones/internal/bonerr"
)

// Item is the projected row shape returned by read queries (spec §6.2).
type Item struct {
	ItemID       string
	Title        string
	Description  string
	Kind         string
	Size         string
	Urgency      string
	Epoch        int64
	State        string
	ParentID     sql.NullString
	CreatedAtUs  int64
	UpdatedAtUs  int64
	IsDeleted    bool
	Labels       []string
	Assignees    []string
}

// Comment is a projected row from item_comments.
type Comment struct {
	ItemID      string
	EventHash   string
	Author      string
	Body        string
	CreatedAtUs int64
}

// Dependency is a projected row from item_dependencies.
type Dependency struct {
	ItemID          string
	DependsOnItemID string
	LinkType        string
}

const itemColumns = `item_id, title, description, kind, size, urgency, epoch, state, parent_id, created_at_us, updated_at_us, is_deleted`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var isDeleted int64
	if err := row.Scan(&it.ItemID, &it.Title, &it.Description, &it.Kind, &it.Size, &it.Urgency,
		&it.Epoch, &it.State, &it.ParentID, &it.CreatedAtUs, &it.UpdatedAtUs, &isDeleted); err != nil {
		return Item{}, err
	}
	it.IsDeleted = isDeleted != 0
	return it, nil
}

// GetItem fetches a single item by id, including its labels and assignees.
// Returns bonerr.ItemNotFound if no such item exists (or it is tombstoned).
func (db *DB) GetItem(ctx context.Context, itemID string) (Item, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = ? AND is_deleted = 0`, itemID)
	it, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Item{}, bonerr.New(bonerr.ItemNotFound, "item "+itemID+" not found")
		}
		return Item{}, bonerr.Wrap(bonerr.IO, "querying item", err)
	}
	labels, err := db.labelsFor(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	it.Labels = labels
	assignees, err := db.assigneesFor(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	it.Assignees = assignees
	return it, nil
}

// ListItemsFilter narrows ListItems; zero values mean "no filter".
type ListItemsFilter struct {
	State         string
	Kind          string
	Label         string
	Assignee      string
	IncludeDeleted bool
}

// ListItems returns items matching filter, ordered by updated_at_us descending.
func (db *DB) ListItems(ctx context.Context, filter ListItemsFilter) ([]Item, error) {
	query := `SELECT DISTINCT i.item_id, i.title, i.description, i.kind, i.size, i.urgency, i.epoch, i.state, i.parent_id, i.created_at_us, i.updated_at_us, i.is_deleted FROM items i`
	var joins []string
	var where []string
	var args []any

	if filter.Label != "" {
		joins = append(joins, `JOIN item_labels il ON il.item_id = i.item_id`)
		where = append(where, `il.label = ?`)
		args = append(args, filter.Label)
	}
	if filter.Assignee != "" {
		joins = append(joins, `JOIN item_assignees ia ON ia.item_id = i.item_id`)
		where = append(where, `ia.agent = ?`)
		args = append(args, filter.Assignee)
	}
	if filter.State != "" {
		where = append(where, `i.state = ?`)
		args = append(args, filter.State)
	}
	if filter.Kind != "" {
		where = append(where, `i.kind = ?`)
		args = append(args, filter.Kind)
	}
	if !filter.IncludeDeleted {
		where = append(where, `i.is_deleted = 0`)
	}
	for _, j := range joins {
		query += " " + j
	}
	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}
	query += " ORDER BY i.updated_at_us DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "listing items", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning item row", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "iterating item rows", err)
	}

	for i := range items {
		labels, err := db.labelsFor(ctx, items[i].ItemID)
		if err != nil {
			return nil, err
		}
		items[i].Labels = labels
		assignees, err := db.assigneesFor(ctx, items[i].ItemID)
		if err != nil {
			return nil, err
		}
		items[i].Assignees = assignees
	}
	return items, nil
}

func (db *DB) labelsFor(ctx context.Context, itemID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT label FROM item_labels WHERE item_id = ? ORDER BY label`, itemID)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "querying labels", err)
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning label", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (db *DB) assigneesFor(ctx context.Context, itemID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT agent FROM item_assignees WHERE item_id = ? ORDER BY agent`, itemID)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "querying assignees", err)
	}
	defer rows.Close()
	var agents []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning assignee", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetComments returns an item's comments ordered by created_at_us then
// event_hash (spec §4.I comment fold rule / crdt.SortComments order).
func (db *DB) GetComments(ctx context.Context, itemID string) ([]Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, event_hash, author, body, created_at_us FROM item_comments WHERE item_id = ? ORDER BY created_at_us, event_hash`, itemID)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "querying comments", err)
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ItemID, &c.EventHash, &c.Author, &c.Body, &c.CreatedAtUs); err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning comment", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// GetDependencies returns the edges where item_id depends on another item.
func (db *DB) GetDependencies(ctx context.Context, itemID string) ([]Dependency, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, depends_on_item_id, link_type FROM item_dependencies WHERE item_id = ? ORDER BY depends_on_item_id, link_type`, itemID)
	if err != nil {
		return nil, bonerr.Wrap(bonerr.IO, "querying dependencies", err)
	}
	defer rows.Close()
	var deps []Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.ItemID, &d.DependsOnItemID, &d.LinkType); err != nil {
			return nil, bonerr.Wrap(bonerr.IO, "scanning dependency", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// GetAssignees returns the agents currently assigned to an item.
func (db *DB) GetAssignees(ctx context.Context, itemID string) ([]string, error) {
	return db.assigneesFor(ctx, itemID)
}

// FieldStamp is the persisted LWW metadata for one (item, field) pair.
type FieldStamp struct {
	Stamp     string
	WallTSUs  int64
	Agent     string
	EventHash string
}

// GetFieldStamp returns the current LWW stamp for item_id's field, or the
// zero FieldStamp (WallTSUs == 0) if the field has never been touched.
func (db *DB) GetFieldStamp(ctx context.Context, itemID, field string) (FieldStamp, error) {
	var fs FieldStamp
	row := db.conn.QueryRowContext(ctx,
		`SELECT stamp, wall_ts_us, agent, event_hash FROM item_field_stamps WHERE item_id = ? AND field = ?`, itemID, field)
	err := row.Scan(&fs.Stamp, &fs.WallTSUs, &fs.Agent, &fs.EventHash)
	if err == sql.ErrNoRows {
		return FieldStamp{}, nil
	}
	if err != nil {
		return FieldStamp{}, bonerr.Wrap(bonerr.IO, "querying field stamp", err)
	}
	return fs, nil
}
