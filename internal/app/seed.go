package app

import (
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
	"github.com/Freeeeeet/tutor_booking/internal/repository/memory"
)

// DemoAccounts are the users created by SeedDemo
type DemoAccounts struct {
	Student model.Actor
	Tutor   model.Actor
	Admin   model.Actor
	TutorID int64
}

// SeedDemo fills an in-memory store with one tutor working weekdays 9:00-18:00,
// one student and one admin.
func SeedDemo(store *memory.Store) DemoAccounts {
	student := store.AddUser(&model.User{Email: "student@example.com", FirstName: "Анна", Role: model.RoleStudent})
	tutorUser := store.AddUser(&model.User{Email: "tutor@example.com", FirstName: "Мария", Role: model.RoleTutor})
	admin := store.AddUser(&model.User{Email: "admin@example.com", FirstName: "Admin", Role: model.RoleAdmin})

	tutor := store.AddTutor(tutorUser.ID, "Мария Иванова")
	for day := time.Monday; day <= time.Friday; day++ {
		store.AddAvailability(&model.TutorAvailability{
			TutorID:     tutor.ID,
			Weekday:     day,
			StartMinute: 9 * 60,
			EndMinute:   18 * 60,
			IsActive:    true,
		})
	}

	return DemoAccounts{
		Student: model.Actor{UserID: student.ID, Role: model.RoleStudent},
		Tutor:   model.Actor{UserID: tutorUser.ID, Role: model.RoleTutor},
		Admin:   model.Actor{UserID: admin.ID, Role: model.RoleAdmin},
		TutorID: tutor.ID,
	}
}
