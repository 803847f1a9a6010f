package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/services"
)

const (
	adminChat    = int64(900)
	employeeChat = int64(100)
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func clock(hour, minute int) *time.Time {
	t := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	return &t
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sentMessage{chatID: msg.ChatID, text: msg.Text})
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type botFixture struct {
	bot    *Bot
	sender *fakeSender
	ledger *repository.SQLiteLedger
	alerts *repository.SQLiteAlertStore
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.CloseSQLite(db) })

	var schedule []models.ShiftSchedule
	for d := time.Monday; d <= time.Friday; d++ {
		schedule = append(schedule, models.ShiftSchedule{Weekday: d, Start: "09:00", End: "17:00"})
	}
	dir := repository.NewStaticDirectory([]*models.Employee{
		{ID: "E", Name: "Somchai", TelegramChatID: employeeChat, Status: models.EnrollmentActive, Schedule: schedule},
		{ID: "A", Name: "Malee", Status: models.EnrollmentActive, Schedule: schedule},
	}, time.UTC)

	policy := services.DefaultPolicy()
	policy.Location = time.UTC

	f := &botFixture{
		sender: &fakeSender{},
		ledger: repository.NewLedger(db),
		alerts: repository.NewAlertStore(db),
	}
	f.bot = newBot(f.sender, adminChat, Deps{
		Directory: dir,
		Ledger:    f.ledger,
		Alerts:    f.alerts,
		Reports:   services.NewAnalytics(f.ledger, dir, policy),
		Location:  time.UTC,
	}, nil)
	f.bot.now = func() time.Time { return *clock(12, 0) }
	return f
}

func command(chatID int64, text string) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func (f *botFixture) seedLate(t *testing.T) *models.AttendanceRecord {
	t.Helper()
	rec := &models.AttendanceRecord{
		EmployeeID:       "E",
		ShiftDate:        "2024-01-15",
		Revision:         1,
		FirstSeenAt:      clock(9, 25),
		LastSeenAt:       clock(9, 25),
		Status:           models.StatusLate,
		ExpectedStart:    clock(9, 0),
		ExpectedEnd:      clock(17, 0),
		SupportingEvents: models.EventRefs{{ID: "ev-1", CameraID: "gate-1", Timestamp: *clock(9, 25)}},
		Reason:           models.ReasonFirstSeen,
	}
	require.NoError(t, f.ledger.Append(context.Background(), rec))
	return rec
}

func TestCommands(t *testing.T) {
	f := newBotFixture(t)
	f.seedLate(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		chatID   int64
		text     string
		contains []string
	}{
		{"Get chat id", employeeChat, "/getid", []string{"`100`"}},
		{"Start for employee hides admin commands", employeeChat, "/start", []string{"/today"}},
		{"Start for admin", adminChat, "/start", []string{"/report", "/ack"}},
		{"Today", employeeChat, "/today", []string{"เข้า: 09:25", "⚠️ สาย"}},
		{"History", employeeChat, "/history", []string{"2024-01-15: ⚠️ สาย"}},
		{"Unknown chat", 555, "/today", []string{"ไม่พบข้อมูลพนักงาน"}},
		{"Report is admin only", employeeChat, "/report", []string{"⛔"}},
		{"Daily report", adminChat, "/report 2024-01-15", []string{"มาทำงาน (1)", "Somchai", "ไม่มาทำงาน (1)", "Malee"}},
		{"Range report", adminChat, "/report 2024-01-15 2024-01-19", []string{"สาย: 1", "รวม: 1"}},
		{"Bad report date", adminChat, "/report 15/01/2024", []string{"YYYY-MM-DD"}},
		{"No pending alerts", adminChat, "/alerts", []string{"ไม่มีการแจ้งเตือนค้าง"}},
		{"Ack without id", adminChat, "/ack", []string{"Usage"}},
		{"Ack unknown alert", adminChat, "/ack 42", []string{"ไม่พบการแจ้งเตือน #42"}},
		{"Unknown command", employeeChat, "/register_employee", []string{"/start"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := f.bot.handleCommand(ctx, command(tt.chatID, tt.text))
			for _, want := range tt.contains {
				assert.Contains(t, reply, want)
			}
		})
	}

	startReply := f.bot.handleCommand(ctx, command(employeeChat, "/start"))
	assert.NotContains(t, startReply, "/ack")
}

func TestAlertCommands(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()
	_, err := f.alerts.Raise(ctx, &models.AbsenceAlert{EmployeeID: "E", ShiftDate: "2024-01-15", Kind: models.AlertLate, RaisedAt: *clock(10, 0)})
	require.NoError(t, err)

	reply := f.bot.handleCommand(ctx, command(adminChat, "/alerts"))
	assert.Contains(t, reply, "`#1`")
	assert.Contains(t, reply, "พนักงานเข้าสาย")

	reply = f.bot.handleCommand(ctx, command(adminChat, "/ack #1"))
	assert.Contains(t, reply, "✅ รับทราบ #1")

	reply = f.bot.handleCommand(ctx, command(adminChat, "/alerts"))
	assert.Contains(t, reply, "ไม่มีการแจ้งเตือนค้าง")
}

func TestHandleUpdateRepliesInMarkdown(t *testing.T) {
	f := newBotFixture(t)

	f.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: command(employeeChat, "/getid")})
	f.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: employeeChat}}})

	msgs := f.sender.messages()
	require.Len(t, msgs, 1, "plain text is ignored")
	assert.Equal(t, employeeChat, msgs[0].chatID)
}

func TestDeliverAlert(t *testing.T) {
	f := newBotFixture(t)
	alert := &models.AbsenceAlert{ID: 1, EmployeeID: "E", ShiftDate: "2024-01-15", Kind: models.AlertAbsent}

	require.NoError(t, f.bot.Deliver(context.Background(), alert, &models.Employee{ID: "E", Name: "Somchai"}))
	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, adminChat, msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "ขาดงาน")
	assert.Contains(t, msgs[0].text, "Somchai")

	f.bot.adminChatID = 0
	assert.Error(t, f.bot.Deliver(context.Background(), alert, nil))
}

func TestRunFeedSendsCheckInNotices(t *testing.T) {
	f := newBotFixture(t)
	rec := f.seedLate(t)

	later := *rec
	later.Revision = 2
	later.LastSeenAt = clock(12, 0)

	changes := make(chan services.RecordChange, 3)
	changes <- services.RecordChange{Record: rec}
	changes <- services.RecordChange{Record: &later, Previous: rec}
	changes <- services.RecordChange{Record: &models.AttendanceRecord{EmployeeID: "A", ShiftDate: "2024-01-15", Status: models.StatusAbsent}}
	close(changes)

	require.NoError(t, f.bot.RunFeed(context.Background(), changes))

	msgs := f.sender.messages()
	require.Len(t, msgs, 2, "one greeting and one late notice for the first sighting only")
	assert.Equal(t, employeeChat, msgs[0].chatID)
	assert.Contains(t, msgs[0].text, "สวัสดี คุณSomchai")
	assert.Contains(t, msgs[0].text, "Camera gate-1")
	assert.Contains(t, msgs[0].text, "เข้าสาย 25 นาที")
	assert.Equal(t, adminChat, msgs[1].chatID)
	assert.Contains(t, msgs[1].text, "พนักงานเข้าสาย")
}
