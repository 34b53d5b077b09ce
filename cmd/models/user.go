package models

import (
	"time"
)

// Doctor and Patient are read-only projections of the profile directory.
// Profiles are owned elsewhere; this service only joins contact fields.

type Doctor struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name      string    `gorm:"column:name;size:255;not null" json:"name"`
	Phone     string    `gorm:"column:phone;size:20" json:"phone"`
	Hospital  string    `gorm:"column:hospital;size:255" json:"hospital"`
	Specialty string    `gorm:"column:specialty;size:255" json:"specialty,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"-"`
}

func (Doctor) TableName() string {
	return "doctors"
}

type Patient struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name      string    `gorm:"column:name;size:255;not null" json:"name"`
	Phone     string    `gorm:"column:phone;size:20" json:"phone"`
	CreatedAt time.Time `gorm:"column:created_at" json:"-"`
}

func (Patient) TableName() string {
	return "patients"
}
