package notify

import (
	"strings"
	"unicode"

	"screeningcomms/internal/types"
)

const mapsSearchURL = "https://www.google.com/maps/search/"

// BSOContact is the public contact detail of a screening office.
type BSOContact struct {
	Email string
	Phone string
}

var bsoContacts = map[string]BSOContact{
	"MBD": {Email: "swb-tr.cswbreastscreening@nhs.net", Phone: "0121 507 4967"},
}

// clinicLocationURLs overrides the location link for known clinics, keyed
// by bso_code then clinic code.
var clinicLocationURLs = map[string]map[string]string{
	"MBD": {
		"MDSAL": mapsSearchURL + "WS9+8AJ",
		"MDSAT": mapsSearchURL + "B6+6QR",
		"MDSBL": mapsSearchURL + "WS3+3JP",
		"MDSBR": mapsSearchURL + "WS8+6DZ",
		"MDSCV": mapsSearchURL + "B24+9FP",
		"MDSCH": mapsSearchURL + "B18+7QH",
		"MDSCW": mapsSearchURL + "B64+7HA",
		"MDSDA": mapsSearchURL + "WS10+8SY",
		"MDSDD": mapsSearchURL + "B23+5DD",
		"MDSHH": mapsSearchURL + "B36+8DT",
		"MDSMG": mapsSearchURL + "B75+5BT",
		"MDSOL": mapsSearchURL + "B69+4DE",
		"MDSQU": mapsSearchURL + "B43+7HA",
		"MDSSY": mapsSearchURL + "B8+3SG",
		"MDSYG": mapsSearchURL + "B10+0HH",
		"MDSVH": mapsSearchURL + "B66+3PZ",
		"MDSSG": mapsSearchURL + "B23+6DJ",
		"MDSNP": mapsSearchURL + "DY4+8PX",
		"MDSWA": mapsSearchURL + "WS2+9BZ",
		"MDSSH": mapsSearchURL + "B71+4HJ",
		"MDSWE": mapsSearchURL + "WS10+7BD",
		"MDSWJ": mapsSearchURL + "WV13+1QG",
	},
}

// Personalisation keys consumed by the notify templates.
const (
	keyDate                = "appointment_date"
	keyTime                = "appointment_time"
	keyClinicName          = "appointment_clinic_name"
	keyAddress             = "appointment_location_address"
	keyLocationDescription = "appointment_location_description"
	keyLocationURL         = "appointment_location_url"
	keyPostcode            = "appointment_location_postcode"
	keyBSOPhone            = "BSO_phone_number"
	keyBSOEmail            = "BSO_email_address"
)

// Personalise renders the template fields for an appointment whose clinic
// is hydrated. Every key is always present; templates reject missing
// fields.
func Personalise(a *types.Appointment) map[string]string {
	clinic := types.Clinic{}
	if a.Clinic != nil {
		clinic = *a.Clinic
	}
	startsAt := a.StartsAt.In(types.London)

	p := map[string]string{
		keyDate:                startsAt.Format("Monday 2 January 2006"),
		keyTime:                startsAt.Format("3:04pm"),
		keyClinicName:          TitleCase(clinic.Name),
		keyLocationDescription: clinic.LocationDescription,
		keyLocationURL:         LocationURL(clinic),
		keyPostcode:            strings.ToUpper(strings.TrimSpace(clinic.Postcode)),
	}

	parts := make([]string, 0, 6)
	for i, line := range clinic.AddressLines() {
		v := TitleCase(line)
		p[addressKey(i+1)] = v
		if v != "" {
			parts = append(parts, v)
		}
	}
	if p[keyPostcode] != "" {
		parts = append(parts, p[keyPostcode])
	}
	p[keyAddress] = strings.Join(parts, ", ")

	contact := bsoContacts[clinic.BSOCode]
	p[keyBSOPhone] = contact.Phone
	p[keyBSOEmail] = contact.Email
	return p
}

func addressKey(n int) string {
	return keyAddress + string(rune('0'+n))
}

// LocationURL picks the clinic's map link: the static table first, then
// the stored location_url, then a maps search on the postcode.
func LocationURL(c types.Clinic) string {
	if url, ok := clinicLocationURLs[c.BSOCode][c.Code]; ok {
		return url
	}
	if c.LocationURL != "" {
		return c.LocationURL
	}
	postcode := strings.Join(strings.Fields(strings.ToUpper(c.Postcode)), "+")
	if postcode == "" {
		return ""
	}
	return mapsSearchURL + postcode
}

// TitleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "off WINDMILL lane" becomes "Off Windmill Lane"
// and "b66" becomes "B66".
func TitleCase(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
