package prediction

// UnknownCrop is returned for a classifier label outside the crop catalog.
const UnknownCrop = "Unknown"

var cropCatalog = map[int64]string{
	1: "Rice", 2: "Maize", 3: "Jute", 4: "Cotton", 5: "Coconut", 6: "Papaya",
	7: "Orange", 8: "Apple", 9: "Muskmelon", 10: "Watermelon", 11: "Grapes",
	12: "Mango", 13: "Banana", 14: "Pomegranate", 15: "Lentil", 16: "Blackgram",
	17: "Mungbean", 18: "Mothbeans", 19: "Pigeonpeas", 20: "Kidneybeans",
	21: "Chickpea", 22: "Coffee",
}

// CropName maps a crop classifier label to its name.
func CropName(label int64) string {
	if name, ok := cropCatalog[label]; ok {
		return name
	}
	return UnknownCrop
}

// CropNames lists the catalog in label order.
func CropNames() []string {
	names := make([]string, 0, len(cropCatalog))
	for label := int64(1); label <= int64(len(cropCatalog)); label++ {
		names = append(names, cropCatalog[label])
	}
	return names
}
