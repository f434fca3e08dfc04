package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/estate/pkg/models"
)

func (r *SQLiteRepo) Analytics(ctx context.Context, topCities int) (*models.Analytics, error) {
	if topCities <= 0 {
		topCities = 5
	}
	a := &models.Analytics{
		PropertiesByStatus: map[models.PropertyStatus]int{},
		PropertiesByType:   map[models.PropertyType]int{},
		InquiriesByStatus:  map[models.InquiryStatus]int{},
		TopCities:          []models.CityCount{},
	}

	if err := r.groupCount(ctx, `SELECT status, COUNT(1) FROM properties GROUP BY status`, func(k string, n int) {
		a.PropertiesByStatus[models.PropertyStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, `SELECT property_type, COUNT(1) FROM properties GROUP BY property_type`, func(k string, n int) {
		a.PropertiesByType[models.PropertyType(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, `SELECT status, COUNT(1) FROM inquiries GROUP BY status`, func(k string, n int) {
		a.InquiriesByStatus[models.InquiryStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, fmt.Sprintf(`SELECT city, COUNT(1) AS n FROM properties GROUP BY city COLLATE NOCASE ORDER BY n DESC, city ASC LIMIT %d`, topCities), func(k string, n int) {
		a.TopCities = append(a.TopCities, models.CityCount{City: k, Count: n})
	}); err != nil {
		return nil, err
	}

	users, err := r.CountUsersByRole(ctx)
	if err != nil {
		return nil, err
	}
	a.UsersByRole = users

	if err := r.conn.QueryRow(ctx, `SELECT COALESCE(SUM(views), 0), COALESCE(SUM(inquiries), 0) FROM properties`).Scan(&a.TotalViews, &a.TotalInquiries); err != nil {
		return nil, fmt.Errorf("sum counters: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepo) groupCount(ctx context.Context, q string, fn func(key string, n int)) error {
	rows, err := r.conn.QueryRows(ctx, q)
	if err != nil {
		return fmt.Errorf("group count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		fn(k, n)
	}
	return rows.Err()
}
