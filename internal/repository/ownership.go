package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"domus-rmm-sync/internal/models"
)

// OwnershipRepository 设备↔租户归属/共享关系仓库（device_tenants 表）
// 每条边是 (device_id, owner_tenant_id, shared_tenant_id) 三元组；
// 单一归属不变式：同一设备所有边上的 owner_tenant_id 必须一致。
// owner == shared 的自共享边表示"归属租户自己的可见行"，不是数据错误
type OwnershipRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOwnershipRepository 创建归属关系仓库
func NewOwnershipRepository(db *sql.DB, logger *zap.Logger) *OwnershipRepository {
	return &OwnershipRepository{
		db:     db,
		logger: logger,
	}
}

// TenantsFor 获取可以看到该设备的所有租户（owner + shared 去重）
// 通知扇出服务据此决定推送目标
func (r *OwnershipRepository) TenantsFor(ctx context.Context, deviceID string) ([]string, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT DISTINCT tenant_id FROM (
			SELECT owner_tenant_id AS tenant_id FROM device_tenants WHERE device_id = $1
			UNION
			SELECT shared_tenant_id AS tenant_id FROM device_tenants WHERE device_id = $1
		) t
		ORDER BY tenant_id
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tenants: %w", err)
	}
	defer rows.Close()

	tenants := []string{}
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenantID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, nil
}

// OwnerOf 获取设备的归属租户（没有边时返回空串）
func (r *OwnershipRepository) OwnerOf(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}

	var owner string
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_tenant_id FROM device_tenants WHERE device_id = $1 LIMIT 1`,
		deviceID,
	).Scan(&owner)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query device owner: %w", err)
	}

	return owner, nil
}

// IsOwnedBy 判断租户是否为设备的归属租户
// 归属与共享是独立谓词，判断"可见"需要两个都查
func (r *OwnershipRepository) IsOwnedBy(ctx context.Context, deviceID, tenantID string) (bool, error) {
	if deviceID == "" {
		return false, fmt.Errorf("device_id is required")
	}
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_tenants WHERE device_id = $1 AND owner_tenant_id = $2)`,
		deviceID, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device ownership: %w", err)
	}

	return exists, nil
}

// IsSharedWith 判断设备是否共享给了该租户
func (r *OwnershipRepository) IsSharedWith(ctx context.Context, deviceID, tenantID string) (bool, error) {
	if deviceID == "" {
		return false, fmt.Errorf("device_id is required")
	}
	if tenantID == "" {
		return false, fmt.Errorf("tenant_id is required")
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_tenants WHERE device_id = $1 AND shared_tenant_id = $2)`,
		deviceID, tenantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device sharing: %w", err)
	}

	return exists, nil
}

// Share 建立共享边。写边界上强制单一归属：
// 如果设备已有不同的 owner_tenant_id，返回 ErrOwnershipConflict
func (r *OwnershipRepository) Share(ctx context.Context, deviceID, ownerTenantID, sharedTenantID string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if ownerTenantID == "" {
		return fmt.Errorf("owner_tenant_id is required")
	}
	if sharedTenantID == "" {
		return fmt.Errorf("shared_tenant_id is required")
	}

	existingOwner, err := r.OwnerOf(ctx, deviceID)
	if err != nil {
		return err
	}
	if existingOwner != "" && existingOwner != ownerTenantID {
		return fmt.Errorf("device %s already owned by tenant %s: %w",
			deviceID, existingOwner, models.ErrOwnershipConflict)
	}

	query := `
		INSERT INTO device_tenants (device_id, owner_tenant_id, shared_tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (device_id, owner_tenant_id, shared_tenant_id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, query, deviceID, ownerTenantID, sharedTenantID)
	if err != nil {
		return fmt.Errorf("failed to share device: %w", err)
	}

	return nil
}

// Unshare 删除共享边（自共享边也可删除，设备将对该租户不可见）
func (r *OwnershipRepository) Unshare(ctx context.Context, deviceID, sharedTenantID string) error {
	if deviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if sharedTenantID == "" {
		return fmt.Errorf("shared_tenant_id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM device_tenants WHERE device_id = $1 AND shared_tenant_id = $2`,
		deviceID, sharedTenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to unshare device: %w", err)
	}

	return nil
}
