package store

import (
	"context"

	"ridedispatch/internal/model"
)

func gp(lat, lng float64) *model.GeoPoint { return &model.GeoPoint{Lat: lat, Lng: lng} }

// DemoDrivers is the fleet loaded at startup when no external driver
// source is configured. Coordinates are pre-resolved so suggestions
// work even while the geocoder is down.
func DemoDrivers() []model.Driver {
	return []model.Driver{
		{ID: "driver-1", Name: "Avi Cohen", BaseAddress: "Dizengoff 100, Tel Aviv", BaseCoords: gp(32.0779, 34.7742), MaxDailyHrs: 8, Available: true},
		{ID: "driver-2", Name: "Moshe Levi", BaseAddress: "Herzl 50, Ramat Gan", BaseCoords: gp(32.0823, 34.8140), MaxDailyHrs: 8, Available: true},
		{ID: "driver-3", Name: "Yael Mizrahi", BaseAddress: "Sokolov 20, Holon", BaseCoords: gp(32.0167, 34.7792), MaxDailyHrs: 6, Available: true},
		{ID: "driver-4", Name: "Dana Peretz", BaseAddress: "Ben Gurion 15, Bat Yam", BaseCoords: gp(32.0231, 34.7515), MaxDailyHrs: 8, Available: false},
		{ID: "driver-5", Name: "Eli Biton", BaseAddress: "Jabotinsky 80, Petah Tikva", BaseCoords: gp(32.0878, 34.8878), MaxDailyHrs: 10, Available: true},
	}
}

// DemoTasks is the sample batch used when an optimization request
// arrives with an empty task list.
func DemoTasks() []model.Task {
	return []model.Task{
		{ID: "task-1", Address: "Rothschild 1, Tel Aviv", ServiceDurationMin: 20},
		{ID: "task-2", Address: "Allenby 40, Tel Aviv", ServiceDurationMin: 15},
		{ID: "task-3", Address: "Ibn Gabirol 71, Tel Aviv", ServiceDurationMin: 30},
		{ID: "task-4", Address: "Weizmann 14, Tel Aviv", ServiceDurationMin: 25},
	}
}

// SeedDemo loads the demo fleet into s. Existing drivers are left alone.
func SeedDemo(ctx context.Context, s Store) error {
	existing, err := s.ListDrivers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, d := range DemoDrivers() {
		if _, err := s.CreateDriver(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
