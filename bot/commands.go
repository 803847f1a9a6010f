package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/services"
)

const historyDays = 7

var statusLabels = map[models.AttendanceStatus]string{
	models.StatusPresent:    "✅ ตรงเวลา",
	models.StatusLate:       "⚠️ สาย",
	models.StatusAbsent:     "❌ ขาด",
	models.StatusPartial:    "🌓 ไม่ครบกะ",
	models.StatusUnverified: "❔ ไม่ยืนยัน",
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) string {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		text := "🏢 *ระบบบันทึกเวลาเข้างาน*\n\n" +
			"*คำสั่ง:*\n" +
			"/getid - Chat ID\n" +
			"/today - เวลาวันนี้\n" +
			"/history - ประวัติ"
		if b.isAdmin(chatID) {
			text += "\n/report [YYYY-MM-DD] - รายงานประจำวัน\n" +
				"/report <from> <to> - สรุปช่วงวันที่\n" +
				"/alerts - การแจ้งเตือนที่ยังไม่รับทราบ\n" +
				"/ack <id> - รับทราบการแจ้งเตือน"
		}
		return text

	case "getid":
		return fmt.Sprintf("Chat ID: `%d`", chatID)

	case "today":
		return b.today(ctx, chatID)

	case "history":
		return b.history(ctx, chatID)

	case "report":
		if !b.isAdmin(chatID) {
			return "⛔ คำสั่งนี้สำหรับผู้ดูแลเท่านั้น"
		}
		return b.report(ctx, strings.Fields(message.CommandArguments()))

	case "alerts":
		if !b.isAdmin(chatID) {
			return "⛔ คำสั่งนี้สำหรับผู้ดูแลเท่านั้น"
		}
		return b.pendingAlerts(ctx)

	case "ack":
		if !b.isAdmin(chatID) {
			return "⛔ คำสั่งนี้สำหรับผู้ดูแลเท่านั้น"
		}
		return b.ack(ctx, strings.TrimSpace(message.CommandArguments()))
	}
	return "ไม่รู้จักคำสั่ง ใช้ /start"
}

func (b *Bot) employee(ctx context.Context, chatID int64) (*models.Employee, string) {
	emp, err := b.deps.Directory.LookupByTelegramChat(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "❌ ไม่พบข้อมูลพนักงานที่ผูกกับแชทนี้"
	}
	if err != nil {
		b.log.Warn("employee lookup failed", "chat_id", chatID, "error", err)
		return nil, "❌ ระบบข้อมูลพนักงานไม่พร้อมใช้งาน ลองใหม่ภายหลัง"
	}
	return emp, ""
}

func (b *Bot) today(ctx context.Context, chatID int64) string {
	emp, msg := b.employee(ctx, chatID)
	if emp == nil {
		return msg
	}

	date := b.now().In(b.deps.Location).Format(models.DateLayout)
	rec, err := b.deps.Ledger.Latest(ctx, models.ShiftKey{EmployeeID: emp.ID, ShiftDate: date})
	if errors.Is(err, repository.ErrNotFound) {
		return "ยังไม่มีการบันทึกเข้างานวันนี้"
	}
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}

	in := "-"
	if rec.FirstSeenAt != nil {
		in = rec.FirstSeenAt.In(b.deps.Location).Format("15:04")
	}
	last := "-"
	if rec.LastSeenAt != nil {
		last = rec.LastSeenAt.In(b.deps.Location).Format("15:04")
	}
	return fmt.Sprintf("📊 *วันนี้*\nเข้า: %s\nล่าสุด: %s\nสถานะ: %s", in, last, statusLabels[rec.Status])
}

func (b *Bot) history(ctx context.Context, chatID int64) string {
	emp, msg := b.employee(ctx, chatID)
	if emp == nil {
		return msg
	}

	now := b.now().In(b.deps.Location)
	records, err := b.deps.Ledger.ListLatest(ctx, repository.LedgerQuery{
		EmployeeID: emp.ID,
		FromDate:   now.AddDate(0, 0, -historyDays).Format(models.DateLayout),
		ToDate:     now.Format(models.DateLayout),
	})
	if err != nil || len(records) == 0 {
		return "ไม่พบประวัติ"
	}

	text := "📅 *ประวัติ*\n\n"
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		text += fmt.Sprintf("%s: %s\n", rec.ShiftDate, statusLabels[rec.Status])
	}
	return text
}

func (b *Bot) report(ctx context.Context, args []string) string {
	loc := b.deps.Location

	switch len(args) {
	case 0, 1:
		date := b.now().In(loc)
		if len(args) == 1 {
			d, err := models.ParseDate(args[0], loc)
			if err != nil {
				return "รูปแบบวันที่: YYYY-MM-DD"
			}
			date = d
		}
		roster, err := b.deps.Reports.DailyRoster(ctx, date)
		if err != nil {
			return fmt.Sprintf("❌ Error: %v", err)
		}
		return services.FormatRoster(roster, loc)

	case 2:
		from, err1 := models.ParseDate(args[0], loc)
		to, err2 := models.ParseDate(args[1], loc)
		if err1 != nil || err2 != nil {
			return "รูปแบบวันที่: YYYY-MM-DD"
		}
		window, err := b.deps.Reports.Window(ctx, services.AnalyticsQuery{From: from, To: to})
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return services.FormatWindow(window)
	}
	return "Usage: `/report [YYYY-MM-DD]` หรือ `/report <from> <to>`"
}

func (b *Bot) pendingAlerts(ctx context.Context) string {
	alerts, err := b.deps.Alerts.List(ctx, repository.AlertQuery{Unacknowledged: true, Limit: 20})
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	if len(alerts) == 0 {
		return "✅ ไม่มีการแจ้งเตือนค้าง"
	}

	text := "🔔 *การแจ้งเตือนที่ยังไม่รับทราบ*\n\n"
	for _, a := range alerts {
		text += fmt.Sprintf("`#%d` %s %s %s\n", a.ID, a.ShiftDate, a.EmployeeID, services.AlertTitle(a))
	}
	return text
}

func (b *Bot) ack(ctx context.Context, arg string) string {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return "Usage: `/ack <id>`"
	}
	alert, err := b.deps.Alerts.Acknowledge(ctx, uint(id), b.now())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Sprintf("ไม่พบการแจ้งเตือน #%d", id)
	}
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	return fmt.Sprintf("✅ รับทราบ #%d (%s %s)", alert.ID, alert.EmployeeID, alert.Kind)
}
