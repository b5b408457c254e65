package service

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"physioheal/internal/config"
	"physioheal/internal/models"
	"physioheal/internal/wizard"
)

// BookingOptions is what the booking modal needs to render its selects.
type BookingOptions struct {
	Services  []string `json:"services"`
	TimeSlots []string `json:"time_slots"`
	MinDate   string   `json:"min_date"`
}

// CatalogService serves the read-only site data: service cards and the clinic contact card.
type CatalogService struct {
	services []models.Service
	clinic   config.ClinicConfig
	subject  string
	mu       sync.RWMutex
}

func NewCatalogService(services []models.Service, clinic config.ClinicConfig, inquirySubject string) *CatalogService {
	return &CatalogService{
		services: append([]models.Service(nil), services...),
		clinic:   clinic,
		subject:  inquirySubject,
	}
}

func (s *CatalogService) Services() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Service(nil), s.services...)
}

// Refresh replaces the catalog, e.g. after the services file was reloaded.
func (s *CatalogService) Refresh(services []models.Service) error {
	if err := config.ValidateServices(services); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append([]models.Service(nil), services...)
	return nil
}

// BookingOptions lists the bookable services and slots; MinDate is the UTC date of now.
func (s *CatalogService) BookingOptions(now time.Time) BookingOptions {
	return BookingOptions{
		Services:  append([]string(nil), models.BookingServices...),
		TimeSlots: append([]string(nil), models.TimeSlots...),
		MinDate:   wizard.Today(now).Format(models.DateLayout),
	}
}

func (s *CatalogService) Clinic() models.ClinicInfo {
	c := s.clinic
	info := models.ClinicInfo{
		Name:           c.Name,
		Phone:          c.Phone,
		EmergencyPhone: c.EmergencyPhone,
		Email:          c.Email,
		Address:        c.Address,
		Hours:          append([]string(nil), c.Hours...),
	}
	if c.Phone != "" {
		info.PhoneLink = "tel:" + c.Phone
	}
	if c.EmergencyPhone != "" {
		info.EmergencyLink = "tel:" + c.EmergencyPhone
	}
	if c.Email != "" {
		info.EmailLink = wizard.InquiryURL(c.Email, s.subject)
	}
	if c.Address != "" {
		info.MapsLink = "https://maps.google.com?q=" + url.QueryEscape(strings.TrimSpace(c.Address))
	}
	return info
}
