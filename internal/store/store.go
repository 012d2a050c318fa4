/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists the profile library. Profiles are stored as
// their canonical JSON documents keyed by id, so the schema on disk is
// identical to the schema on the wire.
package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/volund_bench/internal/models"
)

// ErrNotFound reports a profile id that is not in the library.
var ErrNotFound = errors.New("profile not found")

// Store wraps the database handle for profile CRUD.
type Store struct {
	db *gorm.DB
}

// New runs migrations and returns the store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.ProfileRecord{}); err != nil {
		return nil, fmt.Errorf("migrate profile store: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or updates a profile. An empty id inserts under a fresh
// uuid. The stored payload is the encoded canonical document.
func (s *Store) Save(id string, prof *models.Profile) (*models.ProfileRecord, error) {
	payload, err := models.EncodeProfile(prof)
	if err != nil {
		return nil, err
	}

	if id == "" {
		rec := &models.ProfileRecord{
			ID:      uuid.NewString(),
			Name:    prof.ProfileName,
			Payload: string(payload),
		}
		if err := s.db.Create(rec).Error; err != nil {
			return nil, fmt.Errorf("create profile: %w", err)
		}
		return rec, nil
	}

	var rec models.ProfileRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	rec.Name = prof.ProfileName
	rec.Payload = string(payload)
	if err := s.db.Save(&rec).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &rec, nil
}

// Get loads one profile by id, decoding the stored document.
func (s *Store) Get(id string) (*models.ProfileRecord, *models.Profile, error) {
	var rec models.ProfileRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load profile: %w", err)
	}
	prof, err := models.DecodeProfile([]byte(rec.Payload))
	if err != nil {
		return nil, nil, fmt.Errorf("decode stored profile %s: %w", id, err)
	}
	return &rec, prof, nil
}

// List returns all records, newest first, without decoding payloads.
func (s *Store) List() ([]models.ProfileRecord, error) {
	var recs []models.ProfileRecord
	if err := s.db.Order("updated_at desc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return recs, nil
}

// Delete removes a profile by id.
func (s *Store) Delete(id string) error {
	res := s.db.Delete(&models.ProfileRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
