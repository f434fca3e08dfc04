package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/estate/pkg/models"
)

const inquiryColumns = `i.id, i.property_id, i.buyer_id, i.owner_id, i.message, i.contact_method,
	i.buyer_name, i.buyer_email, i.buyer_phone, i.status, i.response,
	i.created, i.updated, i.responded, i.version,
	COALESCE(p.title, ''), p.id IS NULL`

const inquiryFrom = ` FROM inquiries i LEFT JOIN properties p ON p.id = i.property_id`

var errNotApproved = errors.New("property missing or not approved")

func (r *SQLiteRepo) CreateInquiry(ctx context.Context, q *models.Inquiry) (bool, error) {
	if q == nil {
		return false, fmt.Errorf("inquiry is nil")
	}
	ts := now()
	if q.Version == 0 {
		q.Version = 1
	}
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		// Write first so the transaction takes the write lock up front.
		res, err := tx.ExecContext(ctx, `UPDATE properties SET inquiries = inquiries + 1 WHERE id = ? AND status = 'approved'`, q.Property)
		if err != nil {
			return fmt.Errorf("increment inquiries: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return errNotApproved
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO inquiries (id, property_id, buyer_id, owner_id, message, contact_method,
			buyer_name, buyer_email, buyer_phone, status, response, created, updated, responded, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, q.Property, q.Buyer, q.Owner, q.Message, string(q.ContactMethod),
			q.BuyerInfo.Name, q.BuyerInfo.Email, nullString(q.BuyerInfo.Phone), string(q.Status), nullString(q.Response),
			ts, ts, millisOrNil(q.RespondedAt), q.Version)
		if err != nil {
			return fmt.Errorf("insert inquiry: %w", err)
		}
		return nil
	})
	if errors.Is(err, errNotApproved) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.CreatedAt = fromMillis(ts)
	q.UpdatedAt = q.CreatedAt
	return true, nil
}

func (r *SQLiteRepo) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	q, err := scanInquiry(r.conn.QueryRow(ctx, `SELECT `+inquiryColumns+inquiryFrom+` WHERE i.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return q, err
}

func (r *SQLiteRepo) ListInquiriesByBuyer(ctx context.Context, buyerID string, f models.InquiryFilter) ([]models.Inquiry, int, error) {
	return r.listInquiries(ctx, "i.buyer_id = ?", buyerID, f)
}

func (r *SQLiteRepo) ListInquiriesByOwner(ctx context.Context, ownerID string, f models.InquiryFilter) ([]models.Inquiry, int, error) {
	return r.listInquiries(ctx, "i.owner_id = ?", ownerID, f)
}

func (r *SQLiteRepo) listInquiries(ctx context.Context, scope, id string, f models.InquiryFilter) ([]models.Inquiry, int, error) {
	where := " WHERE " + scope
	args := []any{id}
	if f.Status != "" {
		where += " AND i.status = ?"
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM inquiries i`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count inquiries: %w", err)
	}

	limit := pageLimit(f.Limit, 10, 100)
	f.Limit = limit
	rows, err := r.conn.QueryRows(ctx, `SELECT `+inquiryColumns+inquiryFrom+where+` ORDER BY i.created DESC, i.id ASC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	out := make([]models.Inquiry, 0, limit)
	for rows.Next() {
		q, err := scanInquiry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate inquiries: %w", err)
	}
	return out, total, nil
}

func (r *SQLiteRepo) UpdateInquiry(ctx context.Context, q *models.Inquiry, expectedVersion int64) (bool, error) {
	if q == nil {
		return false, fmt.Errorf("inquiry is nil")
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `UPDATE inquiries SET status = ?, response = ?, responded = ?, updated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(q.Status), nullString(q.Response), millisOrNil(q.RespondedAt), ts, q.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update inquiry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update inquiry rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	q.Version = expectedVersion + 1
	q.UpdatedAt = fromMillis(ts)
	return true, nil
}

func (r *SQLiteRepo) DeleteInquiry(ctx context.Context, id string) (bool, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM inquiries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete inquiry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanInquiry(s scanner) (*models.Inquiry, error) {
	var (
		q                models.Inquiry
		contact, status  string
		phone, response  sql.NullString
		created, updated int64
		responded        sql.NullInt64
		deleted          int
	)
	err := s.Scan(&q.ID, &q.Property, &q.Buyer, &q.Owner, &q.Message, &contact,
		&q.BuyerInfo.Name, &q.BuyerInfo.Email, &phone, &status, &response,
		&created, &updated, &responded, &q.Version,
		&q.PropertyTitle, &deleted)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan inquiry: %w", err)
	}
	q.ContactMethod = models.ContactMethod(contact)
	q.Status = models.InquiryStatus(status)
	q.BuyerInfo.Phone = phone.String
	q.Response = response.String
	q.CreatedAt = fromMillis(created)
	q.UpdatedAt = fromMillis(updated)
	q.RespondedAt = nullMillis(responded)
	q.PropertyDeleted = deleted != 0
	return &q, nil
}
