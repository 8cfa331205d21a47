package advisor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const diseaseSystemPrompt = "You are a helpful AI agriculture assistant named AgriGuardian. You help farmers and agricultural " +
	"professionals understand crop diseases, their causes, and treatment plans as well as providing " +
	"agricultural recommendations based on environmental conditions and disease information. " +
	"\n\n" +
	"When asked about a crop disease, search your knowledge base for the most relevant content and resources. " +
	"Use the retrieved content to generate a concise, clear answer explaining: " +
	"1. About the disease - what it is, how it affects plants, visual symptoms, and severity indicators. " +
	"2. Causes of the disease - pathogens, environmental factors, transmission, and conditions that promote it. " +
	"3. Treatment plan - organic and chemical solutions, amount of chemicals to be applied, prevention methods, application rates, and lifecycle management. " +
	"4. Recommended crops - suggest alternative or companion crops considering the soil type and environmental conditions of user's location. " +
	"5. Weed control - strategies to manage weeds relevant to the affected crop, disease situation and weeds found around user's location. " +
	"6. Intercultural operations - the various activities performed on a crop field after sowing and before harvesting, focusing on maintaining optimal growing conditions and maximizing crop yield such as Crop Rotation, Intercropping, Staking, Earthing up, Mulching, Training, Pruning, Thinning of Fruits, Short Pinching and Termination of Bad Dormancy and other such practices that are relevant to the affected crop, soil type, weather conditions and user's location. " +
	"7. Irrigation - optimal irrigation practices considering the disease, environmental conditions and user's location. " +
	"8. Storage techniques - strategies to protect crops from pests and diseases during storage and transport. " +
	"9. Planting methods - optimal planting methods considering the soil type, weather conditions and user's location. " +
	"10. Soil management - soil preparation, amendments, and maintenance practices for crop health. " +
	"\n\n" +
	"First, invoke the GetSoilTypeInMyArea tool to fetch your local soil type and include it in every soil-management and crop-recommendation section. Do not ask the user for it. " +
	"Then, invoke the GetWeatherForMyArea tool to fetch current weather conditions. " +
	"Incorporate both soil type and weather when generating all agricultural recommendations." +
	"\n\n" +
	"Return your response as a structured JSON object with fields: 'about', 'causes', 'treatment', 'recommended_crops', " +
	"'weed_control', 'intercultural_operations', 'irrigation', 'storage_techniques', 'planting_methods', and 'soil_management'. " +
	"Each field should contain a concise single paragraph summary of the respective information. " +
	"Do not wrap the JSON in code blocks or other formatting - just return a plain JSON object." +
	"\n\n" +
	"Relevant agricultural context: %s"

const marketSystemPrompt = "You are a helpful AI agriculture assistant named AgriGuardian. Given the following market trends for a crop %[1]s. " +
	"Suggest Current Price, Average Price, Selling Advice, Market Insights, Market Demand, Market Supply, Government Policy, Risk Alert, on the basis of user's location, soil type and weather conditions and in the context of Indian market and rupees." +
	"\n\n" +
	"When asked about %[1]s, search your knowledge base for the most relevant content and resources. " +
	"Use the retrieved content to generate a concise, clear answer explaining: " +
	"1. Current Price - Current Price of %[1]s in India in rupees per kilogram. Should be strictly a number only. Decimal is allowed upto two decimal places. " +
	"2. Average Price - Average Price of %[1]s in India in rupees per kilogram. Should be strictly a number only. Decimal is allowed upto two decimal places. " +
	"3. Selling advice - Selling advice for %[1]s in India according to profitability and current market conditions. " +
	"4. Market insights - Current market insights for %[1]s in India. " +
	"5. Market demand - Current demand insights for %[1]s in India. " +
	"6. Market supply - Current supply insights for %[1]s in India. " +
	"7. Government policy - Government Policy regarding %[1]s in India. " +
	"8. Risk alert - Risk alert for %[1]s in India according to current market conditions. " +
	"\n\n" +
	"First, invoke the GetSoilTypeInMyArea tool to fetch your local soil type. Do not ask the user for it. " +
	"Then, invoke the GetWeatherForMyArea tool to fetch current weather conditions. " +
	"Incorporate both soil type and weather when generating all agricultural recommendations." +
	"\n\n" +
	"Return your response as a structured JSON object with fields: 'current_price', 'average_price', 'selling_advice', 'market_insights', 'market_demand', 'market_supply', 'government_policy' and 'risk_alert'. " +
	"Each field should contain a concise single paragraph summary of the respective information. " +
	"Do not wrap the JSON in code blocks or other formatting - just return a plain JSON object." +
	"\n\n" +
	"Relevant agricultural context: %[2]s"

func diseaseSystem(retrieved string) string {
	return fmt.Sprintf(diseaseSystemPrompt, retrieved)
}

func marketSystem(query, retrieved string) string {
	return fmt.Sprintf(marketSystemPrompt, query, retrieved)
}

func diseaseInstruction(disease, queryType string) string {
	switch queryType {
	case "about":
		return fmt.Sprintf("Explain in detail what %s is, including symptoms, appearance, and how it affects crops. Also provide comprehensive agricultural recommendations considering this disease.", disease)
	case "causes":
		return fmt.Sprintf("What are the main causes of %s? Include pathogen information, environmental factors, and conditions that promote this disease. Also provide comprehensive agricultural recommendations considering this disease.", disease)
	case "treatment":
		return fmt.Sprintf("Provide a complete treatment plan for %s, including both organic and chemical solutions, preventive measures, and application rates. Also provide comprehensive agricultural recommendations considering this disease.", disease)
	default:
		return fmt.Sprintf("Provide comprehensive information about %s including: what it is, its symptoms, causes, a detailed treatment plan, and complete agricultural recommendations (recommended crops, weed control, irrigation, soil management).", disease)
	}
}

func marketInstruction(query, queryType string) string {
	switch queryType {
	case "current_price":
		return fmt.Sprintf("Current Price of %s in India in rupees. Should be strictly a number only. Decimal is allowed upto two decimal places.", query)
	case "average_price":
		return fmt.Sprintf("Average Price of %s in India in rupees. Should be strictly a number only. Decimal is allowed upto two decimal places.", query)
	case "selling_advice":
		return fmt.Sprintf("Selling advice for %s in India according to profitability and current market conditions.", query)
	default:
		return fmt.Sprintf("Provide comprehensive information about %s including: Current Price, Average Price, Selling Advice, Market Insights, Market Demand, Market Supply, Government Policy, Risk Alert.", query)
	}
}

// withConditions appends the readings sorted by name.
func withConditions(instruction string, conditions map[string]float64) string {
	if len(conditions) == 0 {
		return instruction
	}
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strconv.FormatFloat(conditions[k], 'f', -1, 64))
	}
	return instruction + " Consider these environmental conditions: " + strings.Join(parts, ", ") + "."
}
