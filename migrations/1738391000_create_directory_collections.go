package migrations

import (
	"github.com/pocketbase/pocketbase/core"
)

// Record ids double as employee ids, so they may carry the codes cameras report.
const employeeIDPattern = `^[A-Za-z0-9_-]+$`

func init() {
	core.AppMigrations.Register(func(app core.App) error {
		employees := core.NewBaseCollection("employees")
		if id, ok := employees.Fields.GetByName(core.FieldNameId).(*core.TextField); ok {
			id.Min = 1
			id.Max = 64
			id.Pattern = employeeIDPattern
		}
		employees.Fields.Add(
			&core.TextField{
				Id:       "emp_name",
				Name:     "name",
				Required: true,
				Max:      255,
			},
			&core.NumberField{
				Id:      "emp_chat",
				Name:    "telegram_chat_id",
				OnlyInt: true,
			},
			&core.SelectField{
				Id:        "emp_status",
				Name:      "status",
				Values:    []string{"active", "suspended"},
				MaxSelect: 1,
			},
		)
		employees.AddIndex("idx_employees_chat", false, "telegram_chat_id", "telegram_chat_id != 0")
		if err := app.Save(employees); err != nil {
			return err
		}

		schedules := core.NewBaseCollection("shift_schedules")
		schedules.Fields.Add(
			&core.RelationField{
				Id:            "sch_employee",
				Name:          "employee",
				CollectionId:  employees.Id,
				Required:      true,
				MaxSelect:     1,
				CascadeDelete: true,
			},
			&core.NumberField{
				Id:      "sch_weekday",
				Name:    "weekday",
				OnlyInt: true,
				Min:     floatPtr(0),
				Max:     floatPtr(6),
			},
			&core.TextField{
				Id:       "sch_start",
				Name:     "start_time",
				Required: true,
				Pattern:  `^([01][0-9]|2[0-3]):[0-5][0-9]$`,
			},
			&core.TextField{
				Id:       "sch_end",
				Name:     "end_time",
				Required: true,
				Pattern:  `^([01][0-9]|2[0-3]):[0-5][0-9]$`,
			},
		)
		schedules.AddIndex("idx_shift_schedules_employee_weekday", true, "employee, weekday", "")
		return app.Save(schedules)
	}, func(app core.App) error {
		for _, name := range []string{"shift_schedules", "employees"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}

func floatPtr(v float64) *float64 { return &v }
