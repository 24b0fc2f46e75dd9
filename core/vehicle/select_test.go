package vehicle

import (
	"context"
	"errors"
	"testing"
)

type fakeFinder struct {
	list   []Summary
	drives map[int64]*DriveState
}

func (f fakeFinder) Vehicles(context.Context) ([]Summary, error) { return f.list, nil }
func (f fakeFinder) DriveState(_ context.Context, id int64) (*DriveState, error) {
	return f.drives[id], nil
}

var site = Location{Latitude: -33.8688, Longitude: 151.2093}

func TestDistance(t *testing.T) {
	// roughly 111m per 0.001 degree of latitude
	d := Distance(site, Location{Latitude: site.Latitude + 0.001, Longitude: site.Longitude})
	if d < 110 || d > 112 {
		t.Fatalf("unexpected distance %v", d)
	}
	if Distance(site, site) != 0 {
		t.Fatalf("expected zero distance")
	}
}

func TestSelectPicksVehicleAtSite(t *testing.T) {
	f := fakeFinder{
		list: []Summary{{ID: 1, State: "asleep"}, {ID: 2, State: "online"}, {ID: 3, State: "online"}},
		drives: map[int64]*DriveState{
			2: {Location: Location{Latitude: site.Latitude + 0.01, Longitude: site.Longitude}},
			3: {Location: Location{Latitude: site.Latitude + 0.0002, Longitude: site.Longitude}},
		},
	}
	v, err := Select(context.Background(), f, site, 100)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if v.ID != 3 {
		t.Fatalf("expected vehicle 3 got %d", v.ID)
	}
}

func TestSelectErrors(t *testing.T) {
	speed := 30.0
	moving := fakeFinder{
		list:   []Summary{{ID: 1, State: "online"}},
		drives: map[int64]*DriveState{1: {Location: site, Speed: &speed}},
	}
	if _, err := Select(context.Background(), moving, site, 100); !errors.Is(err, ErrVehicleMoving) {
		t.Fatalf("expected moving error got %v", err)
	}
	asleep := fakeFinder{list: []Summary{{ID: 1, State: "asleep"}}}
	if _, err := Select(context.Background(), asleep, site, 100); !errors.Is(err, ErrNoVehicle) {
		t.Fatalf("expected no vehicle error got %v", err)
	}
}
