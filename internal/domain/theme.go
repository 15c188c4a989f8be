package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Mission catalog.
var Missions = []string{
	"Sauver quelqu'un",
	"Résoudre un mystère",
	"Trouver un trésor",
	"Explorer l'inconnu",
	"Faire une découverte",
	"Créer quelque chose",
	"Aider un ami",
	"Affronter une peur",
}

// Location catalog. The last two entries are special: the first asks the
// child to describe the place, the second leaves the choice to the storyteller.
const (
	LocationCustom   = "Crée ton lieu"
	LocationSurprise = "Tu me laisses choisir ?"
)

var Locations = []string{
	"Espace",
	"Forêt magique",
	"Île volcanique",
	"Ville futuriste",
	LocationCustom,
	LocationSurprise,
}

// Morals offered by default.
var Morals = []string{
	"Il ne faut pas mentir",
	"Le courage triomphe toujours",
	"On apprend de ses erreurs",
	"L'amitié est une force",
	"La gentillesse change tout",
	"Il ne faut pas juger trop vite",
	"On est plus forts ensemble",
	"Il faut croire en soi",
}

// unspecifiedDetails is the placeholder older clients stored instead of nil.
const unspecifiedDetails = "non précisé"

func IsMission(tag string) bool  { return slices.Contains(Missions, tag) }
func IsLocation(tag string) bool { return slices.Contains(Locations, tag) }

// ThemeSelection is the story theme built across the three theme steps.
// The store keeps whatever it is given; Validate is the contract the
// theme flow and the generator apply.
type ThemeSelection struct {
	Mission         string  `json:"mission,omitempty"`
	MissionDetails  *string `json:"missionDetails,omitempty"`
	MissionRandom   bool    `json:"missionRandom,omitempty"`
	Location        string  `json:"location,omitempty"`
	LocationDetails *string `json:"locationDetails,omitempty"`
	LocationRandom  bool    `json:"locationRandom,omitempty"`
	Morale          *string `json:"morale"`
}

func (t ThemeSelection) HasMission() bool  { return strings.TrimSpace(t.Mission) != "" }
func (t ThemeSelection) HasLocation() bool { return strings.TrimSpace(t.Location) != "" }

// Validate checks what the generator needs: a mission and a location.
func (t ThemeSelection) Validate() error {
	if !t.HasMission() {
		return fmt.Errorf("%w: mission is not set", ErrIncompleteTheme)
	}
	if !t.HasLocation() {
		return fmt.Errorf("%w: location is not set", ErrIncompleteTheme)
	}
	return nil
}

// ValidateMission applies the mission step rules: a catalog mission, with
// details unless the surprise option is confirmed.
func ValidateMission(tag string, details *string, random bool) error {
	if !IsMission(tag) {
		return fmt.Errorf("%w: %q", ErrUnknownMission, tag)
	}
	if !random && blank(details) {
		return ErrDetailsRequired
	}
	return nil
}

// ValidateLocation applies the location step rules.
func ValidateLocation(tag string, details *string, random bool) error {
	if !IsLocation(tag) {
		return fmt.Errorf("%w: %q", ErrUnknownLocation, tag)
	}
	switch tag {
	case LocationCustom:
		if blank(details) {
			return ErrDetailsRequired
		}
	case LocationSurprise:
		if !random {
			return ErrRandomRequired
		}
	default:
		if !random && blank(details) {
			return ErrDetailsRequired
		}
	}
	return nil
}

// FormattedMission is the mission line used in the prompt.
func (t ThemeSelection) FormattedMission() string {
	if t.MissionDetails != nil {
		d := strings.TrimSpace(*t.MissionDetails)
		if d != "" && d != unspecifiedDetails {
			return t.Mission + " : " + d
		}
	}
	return t.Mission
}

// FormattedLocation is the location line used in the prompt.
func (t ThemeSelection) FormattedLocation() string {
	details := ""
	if t.LocationDetails != nil {
		details = strings.TrimSpace(*t.LocationDetails)
	}
	if t.Location == LocationCustom {
		if details == "" {
			return "un lieu mystérieux"
		}
		return details
	}
	if details == "" {
		return t.Location
	}
	return t.Location + ", " + details
}

func blank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }
