package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"physioheal/internal/models"

	"gopkg.in/yaml.v2"
)

// DefaultServices is the catalog used when no services file is configured.
var DefaultServices = []models.Service{
	{Name: "Sports Injury Recovery", Description: "Specialized treatment for athletes and sports-related injuries with advanced rehabilitation techniques.", SortOrder: 1},
	{Name: "Pain Management", Description: "Comprehensive pain relief solutions using evidence-based physiotherapy methods and techniques.", SortOrder: 2},
	{Name: "Manual Therapy", Description: "Hands-on treatment including massage, joint mobilization, and soft tissue manipulation.", SortOrder: 3},
	{Name: "Injury Prevention", Description: "Proactive programs to prevent future injuries and maintain optimal physical health.", SortOrder: 4},
	{Name: "Group Sessions", Description: "Therapeutic group classes for rehabilitation and fitness in a supportive environment.", SortOrder: 5},
	{Name: "Flexible Scheduling", Description: "Convenient appointment times including evenings and weekends to fit your lifestyle.", SortOrder: 6},
}

// LoadServices reads the services catalog file. An empty path yields DefaultServices.
func LoadServices(path string) ([]models.Service, error) {
	if path == "" {
		return append([]models.Service(nil), DefaultServices...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services: %w", err)
	}

	var servicesConfig struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &servicesConfig); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}

	if err := ValidateServices(servicesConfig.Services); err != nil {
		return nil, err
	}

	services := servicesConfig.Services
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].SortOrder < services[j].SortOrder
	})
	return services, nil
}

func ValidateServices(services []models.Service) error {
	if len(services) == 0 {
		return fmt.Errorf("services catalog is empty")
	}
	names := make(map[string]bool)
	for _, s := range services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("service with sort_order %d has no name", s.SortOrder)
		}
		if names[name] {
			return fmt.Errorf("duplicate service name found: %s", name)
		}
		names[name] = true
	}
	return nil
}
