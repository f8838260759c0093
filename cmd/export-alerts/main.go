package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/config"
	"domus-rmm-sync/internal/database"
	"domus-rmm-sync/internal/logger"
	"domus-rmm-sync/internal/models"
	"domus-rmm-sync/internal/repository"
)

// alertExportHeader 导出表头
var alertExportHeader = []string{
	"Alert ID",
	"Remote Alert ID",
	"Device ID",
	"Severity",
	"Status",
	"Title",
	"Description",
	"Triggered At",
	"Acknowledged At",
	"Resolved At",
}

const exportPageSize = 500

func main() {
	output := flag.String("o", "alerts.xlsx", "output xlsx file path")
	deviceID := flag.String("device", "", "filter by device id")
	severity := flag.String("severity", "", "filter by severity (info|warning|critical)")
	status := flag.String("status", "", "filter by status (open|acknowledged|resolved)")
	since := flag.String("since", "", "only alerts triggered at or after this time (RFC3339)")
	until := flag.String("until", "", "only alerts triggered at or before this time (RFC3339)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, "console", "export-alerts")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}
	defer db.Close()

	filters, err := buildFilters(*deviceID, *severity, *status, *since, *until)
	if err != nil {
		log.Fatal("Invalid filter arguments",
			zap.Error(err),
		)
	}

	repo := repository.NewAlertsRepository(db, log)

	exported, err := exportAlerts(context.Background(), repo, filters, *output)
	if err != nil {
		log.Fatal("Failed to export alerts",
			zap.Error(err),
		)
	}

	log.Info("Alerts exported",
		zap.String("output", *output),
		zap.Int("count", exported),
	)
}

func buildFilters(deviceID, severity, status, since, until string) (repository.AlertFilters, error) {
	filters := repository.AlertFilters{}

	if deviceID != "" {
		filters.DeviceID = &deviceID
	}
	if severity != "" {
		switch models.Severity(severity) {
		case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
			filters.Severity = &severity
		default:
			return filters, fmt.Errorf("unknown severity: %s", severity)
		}
	}
	if status != "" {
		switch models.AlertStatus(status) {
		case models.StatusOpen, models.StatusAcknowledged, models.StatusResolved:
			filters.Status = &status
		default:
			return filters, fmt.Errorf("unknown status: %s", status)
		}
	}
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filters, fmt.Errorf("invalid -since: %w", err)
		}
		filters.StartTime = &t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return filters, fmt.Errorf("invalid -until: %w", err)
		}
		filters.EndTime = &t
	}

	return filters, nil
}

// exportAlerts 分页拉取并写入 xlsx，返回导出条数
func exportAlerts(ctx context.Context, repo *repository.AlertsRepository, filters repository.AlertFilters, output string) (int, error) {
	f := excelize.NewFile()

	sheetName := "Alerts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range alertExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return 0, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return 0, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	row := 2
	page := 1
	exported := 0
	for {
		alerts, total, err := repo.ListAlerts(ctx, filters, page, exportPageSize)
		if err != nil {
			f.Close()
			return 0, err
		}

		for _, alert := range alerts {
			if err := writeAlertRow(f, sheetName, row, alert); err != nil {
				f.Close()
				return 0, err
			}
			row++
			exported++
		}

		if exported >= total || len(alerts) == 0 {
			break
		}
		page++
	}

	if err := f.SaveAs(output); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to save xlsx: %w", err)
	}

	return exported, f.Close()
}

func writeAlertRow(f *excelize.File, sheetName string, row int, alert *models.Alert) error {
	deviceID := ""
	if alert.DeviceID != nil {
		deviceID = *alert.DeviceID
	}

	values := []interface{}{
		alert.AlertID,
		alert.RemoteAlertID,
		deviceID,
		string(alert.Severity),
		string(alert.Status),
		alert.Title,
		alert.Description,
		alert.TriggeredAt.Format(time.RFC3339),
		formatTimePtr(alert.AcknowledgedAt),
		formatTimePtr(alert.ResolvedAt),
	}

	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}

	return nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
