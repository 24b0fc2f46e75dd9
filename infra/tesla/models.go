package tesla

import (
	"github.com/drgrieve/TeslaChargingManager/core/model"
	"github.com/drgrieve/TeslaChargingManager/core/vehicle"
)

type chargeStateResponse struct {
	Response *model.ChargeState `json:"response"`
	Error    string             `json:"error"`
}

type driveState struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed"`
}

type driveStateResponse struct {
	Response *driveState `json:"response"`
	Error    string      `json:"error"`
}

type vehiclesResponse struct {
	Response []vehicle.Summary `json:"response"`
	Count    int               `json:"count"`
}

type commandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

type commandResponse struct {
	Response *commandResult `json:"response"`
	Error    string         `json:"error"`
}
