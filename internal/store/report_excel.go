package store

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheetName   = "Energy Summary"
	reportDayFormat    = "20060102"
	reportMinuteFormat = "200601021504"
	maxSheetNameLength = 31 // Excel工作表名称上限
)

// BuildEnergyWorkbook 生成能耗报表工作簿：
// 汇总页为 设备×日期 的kWh矩阵（含合计列），另为每台设备生成一页
// 最近的每分钟平均功率序列
func (s *EnergyStore) BuildEnergyWorkbook(ctx context.Context, names []string, days int, now time.Time) ([]byte, error) {
	if days < 1 {
		days = 3
	}

	f := excelize.NewFile()
	// WriteTo 之前不能关闭文件，仅在出错路径上 Close

	index, err := f.NewSheet(summarySheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
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
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 日期列按时间升序，键格式与能耗计数器一致
	dayKeys := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		dayKeys = append(dayKeys, now.AddDate(0, 0, -i).Format(reportDayFormat))
	}

	headers := make([]string, 0, len(dayKeys)+2)
	headers = append(headers, "UPS")
	for _, day := range dayKeys {
		headers = append(headers, formatReportDay(day))
	}
	headers = append(headers, "Total kWh")
	if err := writeHeaderRow(f, summarySheetName, headers, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetColWidth(summarySheetName, "A", "A", 24); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for rowIdx, name := range names {
		row := rowIdx + 2
		if err := setReportCell(f, summarySheetName, 1, row, name); err != nil {
			f.Close()
			return nil, err
		}

		total := 0.0
		for colIdx, day := range dayKeys {
			ws, err := s.EnergyWattSeconds(ctx, name, day)
			if err != nil {
				f.Close()
				return nil, err
			}
			kwh := roundKWh(ws / 3600.0 / 1000.0)
			total += kwh
			if err := setReportCell(f, summarySheetName, colIdx+2, row, kwh); err != nil {
				f.Close()
				return nil, err
			}
		}
		if err := setReportCell(f, summarySheetName, len(dayKeys)+2, row, roundKWh(total)); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := freezeHeaderRow(f, summarySheetName); err != nil {
		f.Close()
		return nil, err
	}

	// 每台设备一页功率序列
	for _, name := range names {
		if err := s.writePowerSheet(ctx, f, name, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *EnergyStore) writePowerSheet(ctx context.Context, f *excelize.File, upsName string, headerStyle int) error {
	sheetName := sanitizeSheetName(upsName)
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet for %s: %w", upsName, err)
	}

	if err := writeHeaderRow(f, sheetName, []string{"Minute", "Avg Watts"}, headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "A", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	points, err := s.PowerSeries(ctx, upsName, maxPowerPoints)
	if err != nil {
		return err
	}

	// 序列存储为新点在前，报表按时间升序输出
	row := 2
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		if err := setReportCell(f, sheetName, 1, row, formatReportMinute(p.Minute)); err != nil {
			return err
		}
		if err := setReportCell(f, sheetName, 2, row, p.AvgWatts); err != nil {
			return err
		}
		row++
	}

	return freezeHeaderRow(f, sheetName)
}

func writeHeaderRow(f *excelize.File, sheetName string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func freezeHeaderRow(f *excelize.File, sheetName string) error {
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func setReportCell(f *excelize.File, sheetName string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

var sheetNameSanitizer = strings.NewReplacer(
	":", "-", "\\", "-", "/", "-", "?", "-", "*", "-", "[", "(", "]", ")",
)

func sanitizeSheetName(name string) string {
	s := sheetNameSanitizer.Replace(name)
	if s == "" || s == summarySheetName {
		s = "UPS " + s
	}
	if len(s) > maxSheetNameLength {
		s = s[:maxSheetNameLength]
	}
	return s
}

func formatReportDay(day string) string {
	t, err := time.ParseInLocation(reportDayFormat, day, time.Local)
	if err != nil {
		return day
	}
	return t.Format("2006-01-02")
}

func formatReportMinute(minute string) string {
	t, err := time.ParseInLocation(reportMinuteFormat, minute, time.Local)
	if err != nil {
		return minute
	}
	return t.Format("2006-01-02 15:04")
}

func roundKWh(kwh float64) float64 {
	return math.Round(kwh*10000) / 10000
}
