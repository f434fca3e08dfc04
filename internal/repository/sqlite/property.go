package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garnizeh/estate/pkg/models"
)

const propertyColumns = `id, owner_id, title, description, property_type, listing_type,
	full_address, city, state, pincode, landmark,
	carpet_area, bedrooms, bathrooms, balconies, parking_covered, parking_open, floor, total_floors,
	property_age, furnishing, possession,
	expected_price, price_negotiable, maintenance_charges, security_deposit,
	amenities, images, status, verified, rejection_reason,
	views, inquiries, favorites, created, updated, published, version`

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepo) CreateProperty(ctx context.Context, p *models.Property) error {
	if p == nil {
		return fmt.Errorf("property is nil")
	}
	amenities, images, err := encodeLists(p)
	if err != nil {
		return err
	}
	ts := now()
	if p.Version == 0 {
		p.Version = 1
	}
	_, err = r.conn.Exec(ctx, `INSERT INTO properties (`+propertyColumns+`) VALUES (
		?, ?, ?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?, ?,
		?, ?, ?,
		?, ?, ?, ?,
		?, ?, ?, ?, ?,
		?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Owner, p.Title, p.Description, string(p.PropertyType), string(p.ListingType),
		p.Address.FullAddress, p.Address.City, p.Address.State, p.Address.Pincode, nullString(p.Address.Landmark),
		p.Specs.CarpetArea, p.Specs.Bedrooms, p.Specs.Bathrooms, p.Specs.Balconies, p.Specs.Parking.Covered, p.Specs.Parking.Open, p.Specs.Floor, p.Specs.TotalFloors,
		p.Specs.PropertyAge, p.Specs.Furnishing, p.Specs.Possession,
		p.Pricing.ExpectedPrice, boolInt(p.Pricing.PriceNegotiable), p.Pricing.MaintenanceCharges, p.Pricing.SecurityDeposit,
		amenities, images, string(p.Status), boolInt(p.Verified), nullString(p.RejectionReason),
		p.Stats.Views, p.Stats.Inquiries, p.Stats.Favorites, ts, ts, millisOrNil(p.PublishedAt), p.Version,
	)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	p.CreatedAt = fromMillis(ts)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (r *SQLiteRepo) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	p, err := scanProperty(r.conn.QueryRow(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepo) ListProperties(ctx context.Context, f models.PropertyFilter) ([]models.Property, int, error) {
	where, args := propertyWhere(f)

	var total int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM properties`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count properties: %w", err)
	}

	limit := pageLimit(f.Limit, 12, 100)
	f.Limit = limit
	q := `SELECT ` + propertyColumns + ` FROM properties` + where + ` ORDER BY ` + propertyOrder(f.Sort) + ` LIMIT ? OFFSET ?`
	rows, err := r.conn.QueryRows(ctx, q, append(args, limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	out := make([]models.Property, 0, limit)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate properties: %w", err)
	}
	return out, total, nil
}

func (r *SQLiteRepo) UpdateProperty(ctx context.Context, p *models.Property, expectedVersion int64) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("property is nil")
	}
	amenities, images, err := encodeLists(p)
	if err != nil {
		return false, err
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `UPDATE properties SET
		title = ?, description = ?, property_type = ?, listing_type = ?,
		full_address = ?, city = ?, state = ?, pincode = ?, landmark = ?,
		carpet_area = ?, bedrooms = ?, bathrooms = ?, balconies = ?, parking_covered = ?, parking_open = ?, floor = ?, total_floors = ?,
		property_age = ?, furnishing = ?, possession = ?,
		expected_price = ?, price_negotiable = ?, maintenance_charges = ?, security_deposit = ?,
		amenities = ?, images = ?, status = ?, verified = ?, rejection_reason = ?,
		published = ?, updated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.Title, p.Description, string(p.PropertyType), string(p.ListingType),
		p.Address.FullAddress, p.Address.City, p.Address.State, p.Address.Pincode, nullString(p.Address.Landmark),
		p.Specs.CarpetArea, p.Specs.Bedrooms, p.Specs.Bathrooms, p.Specs.Balconies, p.Specs.Parking.Covered, p.Specs.Parking.Open, p.Specs.Floor, p.Specs.TotalFloors,
		p.Specs.PropertyAge, p.Specs.Furnishing, p.Specs.Possession,
		p.Pricing.ExpectedPrice, boolInt(p.Pricing.PriceNegotiable), p.Pricing.MaintenanceCharges, p.Pricing.SecurityDeposit,
		amenities, images, string(p.Status), boolInt(p.Verified), nullString(p.RejectionReason),
		millisOrNil(p.PublishedAt), ts,
		p.ID, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update property: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update property rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	p.Version = expectedVersion + 1
	p.UpdatedAt = fromMillis(ts)
	return true, nil
}

func (r *SQLiteRepo) IncrementViews(ctx context.Context, id string) error {
	if _, err := r.conn.Exec(ctx, `UPDATE properties SET views = views + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) DeleteProperty(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete property: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM property_embeddings WHERE property_id = ?`, id); err != nil {
			return fmt.Errorf("delete embedding: %w", err)
		}
		return nil
	})
	return deleted, err
}

func propertyWhere(f models.PropertyFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Owner != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, f.Owner)
	}
	if f.City != "" {
		conds = append(conds, "city = ? COLLATE NOCASE")
		args = append(args, f.City)
	}
	if f.PropertyType != "" {
		conds = append(conds, "property_type = ?")
		args = append(args, string(f.PropertyType))
	}
	if f.ListingType != "" {
		conds = append(conds, "listing_type = ?")
		args = append(args, string(f.ListingType))
	}
	if f.MinPrice != nil {
		conds = append(conds, "expected_price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		conds = append(conds, "expected_price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.Bedrooms != nil {
		conds = append(conds, "bedrooms >= ?")
		args = append(args, *f.Bedrooms)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR city LIKE ? ESCAPE '\' OR full_address LIKE ? ESCAPE '\' OR landmark LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like, like)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func propertyOrder(sort string) string {
	switch sort {
	case models.SortOldest:
		return "created ASC, id ASC"
	case models.SortPriceAsc:
		return "expected_price ASC, created DESC, id ASC"
	case models.SortPriceDesc:
		return "expected_price DESC, created DESC, id ASC"
	case models.SortPopular:
		return "views DESC, inquiries DESC, created DESC, id ASC"
	default:
		return "created DESC, id ASC"
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func encodeLists(p *models.Property) (string, string, error) {
	amenities := p.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	a, err := json.Marshal(amenities)
	if err != nil {
		return "", "", fmt.Errorf("encode amenities: %w", err)
	}
	images := p.Images
	if images == nil {
		images = []models.Image{}
	}
	i, err := json.Marshal(images)
	if err != nil {
		return "", "", fmt.Errorf("encode images: %w", err)
	}
	return string(a), string(i), nil
}

// scanProperty returns sql.ErrNoRows unwrapped so callers can detect a miss.
func scanProperty(s scanner) (*models.Property, error) {
	var (
		p                  models.Property
		propertyType       string
		listingType        string
		landmark           sql.NullString
		floor, totalFloors sql.NullInt64
		negotiable         int
		maintenance        sql.NullInt64
		deposit            sql.NullInt64
		amenities, images  string
		status             string
		verified           int
		rejection          sql.NullString
		created, updated   int64
		published          sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.Owner, &p.Title, &p.Description, &propertyType, &listingType,
		&p.Address.FullAddress, &p.Address.City, &p.Address.State, &p.Address.Pincode, &landmark,
		&p.Specs.CarpetArea, &p.Specs.Bedrooms, &p.Specs.Bathrooms, &p.Specs.Balconies, &p.Specs.Parking.Covered, &p.Specs.Parking.Open, &floor, &totalFloors,
		&p.Specs.PropertyAge, &p.Specs.Furnishing, &p.Specs.Possession,
		&p.Pricing.ExpectedPrice, &negotiable, &maintenance, &deposit,
		&amenities, &images, &status, &verified, &rejection,
		&p.Stats.Views, &p.Stats.Inquiries, &p.Stats.Favorites, &created, &updated, &published, &p.Version,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan property: %w", err)
	}
	p.PropertyType = models.PropertyType(propertyType)
	p.ListingType = models.ListingType(listingType)
	p.Status = models.PropertyStatus(status)
	p.Address.Landmark = landmark.String
	if floor.Valid {
		v := int(floor.Int64)
		p.Specs.Floor = &v
	}
	if totalFloors.Valid {
		v := int(totalFloors.Int64)
		p.Specs.TotalFloors = &v
	}
	p.Pricing.PriceNegotiable = negotiable != 0
	if maintenance.Valid {
		v := maintenance.Int64
		p.Pricing.MaintenanceCharges = &v
	}
	if deposit.Valid {
		v := deposit.Int64
		p.Pricing.SecurityDeposit = &v
	}
	if err := json.Unmarshal([]byte(amenities), &p.Amenities); err != nil {
		return nil, fmt.Errorf("decode amenities: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	p.Verified = verified != 0
	p.RejectionReason = rejection.String
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	p.PublishedAt = nullMillis(published)
	return &p, nil
}
