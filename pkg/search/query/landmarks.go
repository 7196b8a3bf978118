package query

import (
	"strings"

	"ai-restaurant-search-be/pkg/search/route"
)

// Landmark is a well-known place resolvable without a geocoding call.
type Landmark struct {
	Name     string
	Region   string
	Location route.LatLng
}

var landmarks = []struct {
	Landmark
	aliases []string
}{
	{Landmark{"Eiffel Tower", "FR", route.LatLng{Lat: 48.8584, Lng: 2.2945}}, []string{"eiffel tower", "tour eiffel", "la tour eiffel", "эйфелева башня", "מגדל אייפל", "برج إيفل", "torre eiffel"}},
	{Landmark{"Louvre", "FR", route.LatLng{Lat: 48.8606, Lng: 2.3376}}, []string{"louvre", "musée du louvre", "the louvre", "лувр", "הלובר", "اللوفر"}},
	{Landmark{"Big Ben", "GB", route.LatLng{Lat: 51.5007, Lng: -0.1246}}, []string{"big ben", "биг бен", "ביג בן", "بيغ بن"}},
	{Landmark{"Times Square", "US", route.LatLng{Lat: 40.7580, Lng: -73.9855}}, []string{"times square", "таймс-сквер", "טיימס סקוור"}},
	{Landmark{"Colosseum", "IT", route.LatLng{Lat: 41.8902, Lng: 12.4922}}, []string{"colosseum", "colosseo", "колизей", "הקולוסיאום", "الكولوسيوم", "coliseo", "colisée"}},
	{Landmark{"Sagrada Familia", "ES", route.LatLng{Lat: 41.4036, Lng: 2.1744}}, []string{"sagrada familia", "la sagrada familia", "саграда фамилия"}},
	{Landmark{"Red Square", "RU", route.LatLng{Lat: 55.7539, Lng: 37.6208}}, []string{"red square", "красная площадь", "הכיכר האדומה", "place rouge", "plaza roja"}},
	{Landmark{"Western Wall", "IL", route.LatLng{Lat: 31.7767, Lng: 35.2345}}, []string{"western wall", "kotel", "הכותל", "הכותל המערבי", "стена плача", "حائط البراق"}},
	{Landmark{"Azrieli Center", "IL", route.LatLng{Lat: 32.0745, Lng: 34.7918}}, []string{"azrieli", "azrieli center", "עזריאלי", "מרכז עזריאלי", "азриэли"}},
	{Landmark{"Dizengoff Center", "IL", route.LatLng{Lat: 32.0753, Lng: 34.7752}}, []string{"dizengoff center", "dizengoff", "דיזנגוף סנטר", "דיזנגוף", "дизенгоф"}},
	{Landmark{"Burj Khalifa", "AE", route.LatLng{Lat: 25.1972, Lng: 55.2744}}, []string{"burj khalifa", "برج خليفة", "бурдж-халифа", "בורג' ח'ליפה"}},
}

var landmarkIndex = buildLandmarkIndex()

func buildLandmarkIndex() map[string]Landmark {
	idx := make(map[string]Landmark)
	for _, l := range landmarks {
		for _, a := range l.aliases {
			idx[NormalizeLandmark(a)] = l.Landmark
		}
	}
	return idx
}

// NormalizeLandmark lower-cases and collapses whitespace so aliases compare
// equal regardless of how the user typed them.
func NormalizeLandmark(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// LookupLandmark resolves name against the built-in registry.
func LookupLandmark(name string) (Landmark, bool) {
	l, ok := landmarkIndex[NormalizeLandmark(name)]
	return l, ok
}
