package models

const (
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	NoContextFound   = "No relevant information found in the vector database."
	NotAvailable     = "Information not available"
)

// DiseaseLabels is the closed label set of the disease classifier, index-ordered
// as the model emits its scores.
var DiseaseLabels = [...]string{
	"Apple Scab",
	"Apple Black Rot",
	"Cedar Apple Rust",
	"Healthy Apple",
	"Healthy Blueberry",
	"Cherry Powdery Mildew",
	"Healthy Cherry",
	"Corn Cercospora Leaf Spot",
	"Maize Common Rust",
	"Corn Northern Leaf Blight",
	"Healthy Corn",
	"Grape Black Rot",
	"Grape Black Measles",
	"Grape Leaf Blight",
	"Healthy Grape",
	"Orange Citrus Greening",
	"Peach Bacterial Spot",
	"Healthy Peach",
	"Pepper Bell Bacterial Spot",
	"Healthy Pepper Bell",
	"Potato Early Blight",
	"Potato Late Blight",
	"Healthy Potato",
	"Healthy Raspberry",
	"Healthy Soybean",
	"Squash Powdery Mildew",
	"Strawberry Leaf Scorch",
	"Healthy Strawberry",
	"Tomato Bacterial Spot",
	"Tomato Early Blight",
	"Tomato Late Blight",
	"Tomato Leaf Mold",
	"Tomato Septoria Leaf Spot",
	"Tomato Spider Mites",
	"Tomato Target Spot",
	"Tomato Yellow Leaf Curl Virus",
	"Tomato Mosaic Virus",
	"Healthy Tomato",
}
