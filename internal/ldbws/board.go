package ldbws

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidBoard = errors.New("invalid station board")

// StationBoard is the result of a GetDepBoardWithDetails style call.
type StationBoard struct {
	GeneratedAt  string    `xml:"generatedAt"`
	LocationName string    `xml:"locationName" validate:"required"`
	CRS          string    `xml:"crs" validate:"required"`
	Services     []Service `xml:"trainServices>service" validate:"dive"`
}

type Service struct {
	STD                     string             `xml:"std"`
	ETD                     string             `xml:"etd"`
	STA                     string             `xml:"sta"`
	ETA                     string             `xml:"eta"`
	Platform                string             `xml:"platform"`
	Operator                string             `xml:"operator" validate:"required"`
	OperatorCode            string             `xml:"operatorCode"`
	Length                  string             `xml:"length"`
	ServiceID               string             `xml:"serviceID" validate:"required"`
	Origin                  []Location         `xml:"origin>location" validate:"min=1,dive"`
	Destination             []Location         `xml:"destination>location" validate:"min=1,dive"`
	SubsequentCallingPoints []CallingPointList `xml:"subsequentCallingPoints>callingPointList" validate:"dive"`
}

type Location struct {
	LocationName string `xml:"locationName" validate:"required"`
	CRS          string `xml:"crs"`
}

type CallingPointList struct {
	CallingPoints []CallingPoint `xml:"callingPoint" validate:"dive"`
}

type CallingPoint struct {
	LocationName string `xml:"locationName" validate:"required"`
	CRS          string `xml:"crs"`
	ST           string `xml:"st"`
	ET           string `xml:"et"`
	AT           string `xml:"at"`
	IsCancelled  bool   `xml:"isCancelled"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that board carries every field the departure rows are
// built from.
func Validate(board *StationBoard) error {
	if board == nil {
		return fmt.Errorf("%w: empty response", ErrInvalidBoard)
	}
	if err := validate.Struct(board); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return fmt.Errorf("%w: %s failed on %q (%d errors)",
				ErrInvalidBoard, first.Namespace(), first.Tag(), len(validationErrors))
		}
		return fmt.Errorf("%w: %w", ErrInvalidBoard, err)
	}
	return nil
}
