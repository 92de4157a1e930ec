// Package history persists readings to a local SQLite database so restarts
// do not lose the measurement trail.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Device struct {
	gorm.Model
	YandexID string `gorm:"uniqueIndex"`
	Name     string
	Room     string
	LastSeen time.Time
}

type Measurement struct {
	gorm.Model
	DeviceID    uint      `gorm:"index"`
	Timestamp   time.Time `gorm:"index"`
	Temperature *float64
	Humidity    *float64
	CO2         *float64
}

// Store wraps the SQLite database holding devices and their measurements.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Device{}, &Measurement{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Record upserts the device row and appends one measurement.
func (s *Store) Record(yandexID, name, room string, at time.Time, temp, hum, co2 *float64) error {
	var device Device
	err := s.db.Where(Device{YandexID: yandexID}).
		Assign(Device{Name: name, Room: room, LastSeen: at}).
		FirstOrCreate(&device).Error
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", yandexID, err)
	}
	if device.Name != name || device.Room != room || device.LastSeen.Before(at) {
		device.Name = name
		device.Room = room
		device.LastSeen = at
		if err := s.db.Save(&device).Error; err != nil {
			return fmt.Errorf("update device %s: %w", yandexID, err)
		}
	}

	measurement := Measurement{
		DeviceID:    device.ID,
		Timestamp:   at,
		Temperature: temp,
		Humidity:    hum,
		CO2:         co2,
	}
	if err := s.db.Create(&measurement).Error; err != nil {
		return fmt.Errorf("insert measurement for %s: %w", yandexID, err)
	}
	return nil
}

// Prune deletes measurements older than the retention window.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	result := s.db.Unscoped().
		Where("timestamp < ?", olderThan).
		Delete(&Measurement{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune measurements: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Recent returns the newest measurements for a device, newest first.
func (s *Store) Recent(yandexID string, limit int) ([]Measurement, error) {
	var device Device
	if err := s.db.Where(Device{YandexID: yandexID}).First(&device).Error; err != nil {
		return nil, fmt.Errorf("find device %s: %w", yandexID, err)
	}

	var measurements []Measurement
	err := s.db.Where("device_id = ?", device.ID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&measurements).Error
	if err != nil {
		return nil, fmt.Errorf("load measurements for %s: %w", yandexID, err)
	}
	return measurements, nil
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
