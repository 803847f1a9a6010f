package services

import (
	"fmt"
	"time"

	"face-attendance/internal/models"
)

func employeeName(emp *models.Employee, fallback string) string {
	if emp == nil || emp.Name == "" {
		return fallback
	}
	return emp.Name
}

// AlertTitle returns a short subject line for an alert
func AlertTitle(alert *models.AbsenceAlert) string {
	switch alert.Kind {
	case models.AlertAbsent:
		return "❌ ขาดงาน"
	case models.AlertLate:
		return "⚠️ พนักงานเข้าสาย"
	case models.AlertEarlyDeparture:
		return "🚪 ออกงานก่อนเวลา"
	}
	return "🔔 แจ้งเตือนการเข้างาน"
}

// FormatAlert renders an alert for chat-style sinks
func FormatAlert(alert *models.AbsenceAlert, emp *models.Employee) string {
	return fmt.Sprintf("%s\n👤 ชื่อ: `%s`\n📅 วันที่: `%s`\n🏷 ประเภท: `%s`",
		"*"+AlertTitle(alert)+"*",
		employeeName(emp, alert.EmployeeID),
		alert.ShiftDate,
		alert.Kind)
}

// lateText describes a late arrival in minutes
func lateText(rec *models.AttendanceRecord) string {
	return fmt.Sprintf("เข้าสาย %d นาที", int(LateBy(rec).Minutes()))
}

// FormatCheckIn renders the first-sighting notice sent to an employee
func FormatCheckIn(rec *models.AttendanceRecord, emp *models.Employee, cameraID string, loc *time.Location) string {
	statusEmoji := "✅"
	statusText := "เข้างานตรงเวลา"
	switch rec.Status {
	case models.StatusLate:
		statusEmoji = "⚠️"
		statusText = lateText(rec)
	case models.StatusUnverified:
		statusEmoji = "❔"
		statusText = "ไม่พบกะงานที่ตรงกัน"
	}

	checkIn := "-"
	if rec.FirstSeenAt != nil {
		checkIn = rec.FirstSeenAt.In(loc).Format("15:04:05")
	}

	return fmt.Sprintf(
		"%s *สวัสดี คุณ%s!*\n\n"+
			"🕐 เวลาเข้างาน: `%s`\n"+
			"📍 สถานที่: `Camera %s`\n"+
			"⏰ สถานะ: *%s*\n\n"+
			"ขอให้มีความสุขกับการทำงานวันนี้! 😊",
		statusEmoji, employeeName(emp, rec.EmployeeID), checkIn, cameraID, statusText,
	)
}

// FormatLateNotice renders the admin notice for a late first sighting
func FormatLateNotice(rec *models.AttendanceRecord, emp *models.Employee, loc *time.Location) string {
	checkIn := "-"
	if rec.FirstSeenAt != nil {
		checkIn = rec.FirstSeenAt.In(loc).Format("15:04:05")
	}
	return fmt.Sprintf("⚠️ *พนักงานเข้าสาย*\n👤 ชื่อ: `%s`\n🕐 เวลา: `%s`\n⏰ %s",
		employeeName(emp, rec.EmployeeID), checkIn, lateText(rec))
}

// FormatRoster renders a daily roster as text
func FormatRoster(roster *models.DailyRoster, loc *time.Location) string {
	msg := fmt.Sprintf("📋 *รายงานการเข้างาน %s*\n\n✅ มาทำงาน (%d)\n", roster.Date, len(roster.Present))
	for _, e := range roster.Present {
		at := "-"
		if e.FirstSeenAt != nil {
			at = e.FirstSeenAt.In(loc).Format("15:04")
		}
		msg += fmt.Sprintf("• %s `%s` (%s)\n", e.Name, at, e.Status)
	}
	msg += fmt.Sprintf("\n❌ ไม่มาทำงาน (%d)\n", len(roster.Absent))
	for _, e := range roster.Absent {
		msg += fmt.Sprintf("• %s\n", e.Name)
	}
	return msg
}

// FormatWindow renders analytics totals as text
func FormatWindow(w *models.AnalyticsWindow) string {
	return fmt.Sprintf("📊 *สรุป %s ถึง %s* (%s)\n"+
		"✅ ตรงเวลา: %d\n⚠️ สาย: %d\n❌ ขาด: %d\n🌓 ไม่ครบกะ: %d\n❔ ไม่ยืนยัน: %d\n"+
		"รวม: %d\n⏱ เวลามาเฉลี่ยเทียบเวลาเริ่มงาน: %s",
		w.StartDate, w.EndDate, w.EmployeeID,
		w.PresentCount, w.LateCount, w.AbsentCount, w.PartialCount, w.UnverifiedCount,
		w.TotalRecords, w.AvgArrivalDelta.Round(time.Second))
}
