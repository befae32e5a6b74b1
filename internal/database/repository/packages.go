package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PackageRepo handles installed-package records.
type PackageRepo struct {
	db *sql.DB
}

func NewPackageRepo(db *sql.DB) *PackageRepo { return &PackageRepo{db: db} }

const packageColumns = "name, version, path, pkg_type, entry_point, bridge"

// GetAll returns every installed-package record.
func (r *PackageRepo) GetAll(ctx context.Context) ([]Package, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+packageColumns+" FROM packages ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPackages(rows)
}

// GetByNames returns the records matching names, in no particular order.
// Unknown names are simply absent from the result.
func (r *PackageRepo) GetByNames(ctx context.Context, names []string) ([]Package, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+packageColumns+" FROM packages WHERE name IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPackages(rows)
}

// InsertOrReplace writes records, replacing any existing record with the
// same name. Each write is its own statement; a failure leaves earlier
// writes in place.
func (r *PackageRepo) InsertOrReplace(ctx context.Context, pkgs []Package, bridge string) error {
	for _, p := range pkgs {
		entryPoint := p.EntryPoint
		if p.PkgType == TypeSingleExecutable {
			entryPoint = p.Path
		}
		_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO packages(name, version, path, pkg_type, entry_point, bridge)
		VALUES(?, ?, ?, ?, ?, ?);
		`, p.Name, p.Version.String(), p.Path, string(p.PkgType), entryPoint, bridge)
		if err != nil {
			return fmt.Errorf("write record %s: %w", p.Name, err)
		}
	}
	return nil
}

// Delete removes the named records. Missing names are not an error.
func (r *PackageRepo) Delete(ctx context.Context, names []string) error {
	for _, n := range names {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM packages WHERE name = ?`, n); err != nil {
			return fmt.Errorf("delete record %s: %w", n, err)
		}
	}
	return nil
}

// OwningBridge reports which bridge installed the named package.
func (r *PackageRepo) OwningBridge(ctx context.Context, name string) (string, error) {
	var bridge string
	err := r.db.QueryRowContext(ctx, `SELECT bridge FROM packages WHERE name = ?`, name).Scan(&bridge)
	if err != nil {
		return "", err
	}
	return bridge, nil
}

// ListBridges returns the distinct bridges that own at least one record.
func (r *PackageRepo) ListBridges(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT bridge FROM packages GROUP BY bridge`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bridges []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		bridges = append(bridges, b)
	}
	return bridges, rows.Err()
}

func scanPackages(rows *sql.Rows) ([]Package, error) {
	var out []Package
	for rows.Next() {
		var p Package
		var version, pkgType string
		if err := rows.Scan(&p.Name, &version, &p.Path, &pkgType, &p.EntryPoint, &p.Bridge); err != nil {
			return nil, err
		}
		v, err := ParseVersion(version)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", p.Name, err)
		}
		p.Version = v
		switch PkgType(pkgType) {
		case TypeSingleExecutable, TypeDirectory:
			p.PkgType = PkgType(pkgType)
		default:
			return nil, fmt.Errorf("record %s: unknown pkg_type %q", p.Name, pkgType)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
