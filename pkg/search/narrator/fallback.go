package narrator

import (
	"fmt"

	"ai-restaurant-search-be/pkg/search/langctx"
	"ai-restaurant-search-be/pkg/search/route"
)

// Failure codes shared with the orchestrator.
const (
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeProviderRejected    = "PROVIDER_REJECTED"
	CodeTimeout             = "TIMEOUT"
	CodeInternal            = "INTERNAL_ERROR"
)

type clarifyText struct {
	message  string
	question string
}

var clarifyTexts = map[route.Reason]map[langctx.Language]clarifyText{
	route.ReasonMissingLocation: {
		langctx.English: {"I need a location to search near you.", "Which city or area should I search in, or can you share your location?"},
		langctx.Hebrew:  {"אני צריך מיקום כדי לחפש בקרבתך.", "באיזו עיר או אזור לחפש, או שתוכל לשתף את המיקום שלך?"},
		langctx.Russian: {"Чтобы искать рядом с вами, мне нужно местоположение.", "В каком городе или районе искать, или вы можете поделиться своим местоположением?"},
		langctx.Arabic:  {"أحتاج إلى موقع للبحث بالقرب منك.", "في أي مدينة أو منطقة أبحث، أو هل يمكنك مشاركة موقعك؟"},
		langctx.French:  {"J'ai besoin d'un lieu pour chercher près de vous.", "Dans quelle ville ou quel quartier dois-je chercher, ou pouvez-vous partager votre position ?"},
		langctx.Spanish: {"Necesito una ubicación para buscar cerca de ti.", "¿En qué ciudad o zona busco, o puedes compartir tu ubicación?"},
	},
	route.ReasonAmbiguous: {
		langctx.English: {"I'm not sure what you're looking for yet.", "What kind of food or which area do you have in mind?"},
		langctx.Hebrew:  {"עוד לא ברור לי מה אתה מחפש.", "איזה סוג אוכל או איזה אזור אתה מחפש?"},
		langctx.Russian: {"Я пока не понимаю, что вы ищете.", "Какую кухню или какой район вы имеете в виду?"},
		langctx.Arabic:  {"لست متأكدًا بعد مما تبحث عنه.", "ما نوع الطعام أو المنطقة التي تفكر فيها؟"},
		langctx.French:  {"Je ne sais pas encore exactement ce que vous cherchez.", "Quel type de cuisine ou quel quartier avez-vous en tête ?"},
		langctx.Spanish: {"Todavía no tengo claro qué buscas.", "¿Qué tipo de comida o qué zona tienes en mente?"},
	},
}

var stopTexts = map[langctx.Language]string{
	langctx.English: "I can only help you find places to eat. Try asking for a restaurant, a cuisine or an area.",
	langctx.Hebrew:  "אני יכול לעזור רק במציאת מקומות לאכול. נסה לבקש מסעדה, סוג מטבח או אזור.",
	langctx.Russian: "Я помогаю только искать, где поесть. Попробуйте спросить о ресторане, кухне или районе.",
	langctx.Arabic:  "يمكنني فقط مساعدتك في العثور على أماكن لتناول الطعام. جرّب السؤال عن مطعم أو مطبخ أو منطقة.",
	langctx.French:  "Je peux seulement vous aider à trouver où manger. Demandez un restaurant, une cuisine ou un quartier.",
	langctx.Spanish: "Solo puedo ayudarte a encontrar lugares para comer. Prueba a pedir un restaurante, una cocina o una zona.",
}

var summaryTexts = map[langctx.Language]struct{ found, empty string }{
	langctx.English: {"I found %d places for you.", "I couldn't find matching places. Try a broader search."},
	langctx.Hebrew:  {"מצאתי עבורך %d מקומות.", "לא מצאתי מקומות מתאימים. נסה חיפוש רחב יותר."},
	langctx.Russian: {"Я нашёл для вас мест: %d.", "Подходящих мест не нашлось. Попробуйте расширить поиск."},
	langctx.Arabic:  {"وجدت لك %d من الأماكن.", "لم أجد أماكن مطابقة. جرّب بحثًا أوسع."},
	langctx.French:  {"J'ai trouvé %d adresses pour vous.", "Je n'ai trouvé aucun lieu correspondant. Essayez une recherche plus large."},
	langctx.Spanish: {"Encontré %d lugares para ti.", "No encontré lugares que coincidan. Prueba una búsqueda más amplia."},
}

var failureTexts = map[string]map[langctx.Language]string{
	CodeProviderUnavailable: {
		langctx.English: "The restaurant search service is temporarily unavailable. Please try again in a moment.",
		langctx.Hebrew:  "שירות חיפוש המסעדות אינו זמין כרגע. נסה שוב בעוד רגע.",
		langctx.Russian: "Сервис поиска ресторанов временно недоступен. Попробуйте ещё раз чуть позже.",
		langctx.Arabic:  "خدمة البحث عن المطاعم غير متاحة مؤقتًا. حاول مرة أخرى بعد قليل.",
		langctx.French:  "Le service de recherche de restaurants est momentanément indisponible. Réessayez dans un instant.",
		langctx.Spanish: "El servicio de búsqueda de restaurantes no está disponible por ahora. Inténtalo de nuevo en un momento.",
	},
	CodeProviderRejected: {
		langctx.English: "I couldn't run this search. Please rephrase it and try again.",
		langctx.Hebrew:  "לא הצלחתי לבצע את החיפוש. נסח אותו מחדש ונסה שוב.",
		langctx.Russian: "Не удалось выполнить этот поиск. Переформулируйте запрос и попробуйте снова.",
		langctx.Arabic:  "تعذّر تنفيذ هذا البحث. أعد صياغته وحاول مرة أخرى.",
		langctx.French:  "Je n'ai pas pu lancer cette recherche. Reformulez-la et réessayez.",
		langctx.Spanish: "No pude realizar esta búsqueda. Reformúlala e inténtalo de nuevo.",
	},
	CodeTimeout: {
		langctx.English: "The search took too long. Please try again.",
		langctx.Hebrew:  "החיפוש נמשך זמן רב מדי. נסה שוב.",
		langctx.Russian: "Поиск занял слишком много времени. Попробуйте ещё раз.",
		langctx.Arabic:  "استغرق البحث وقتًا طويلاً. حاول مرة أخرى.",
		langctx.French:  "La recherche a pris trop de temps. Réessayez.",
		langctx.Spanish: "La búsqueda tardó demasiado. Inténtalo de nuevo.",
	},
	CodeInternal: {
		langctx.English: "Something went wrong on our side. Please try again.",
		langctx.Hebrew:  "משהו השתבש אצלנו. נסה שוב.",
		langctx.Russian: "У нас что-то пошло не так. Попробуйте ещё раз.",
		langctx.Arabic:  "حدث خطأ من جهتنا. حاول مرة أخرى.",
		langctx.French:  "Un problème est survenu de notre côté. Réessayez.",
		langctx.Spanish: "Algo salió mal por nuestra parte. Inténtalo de nuevo.",
	},
}

// FailureText is the deterministic explanation for a failure code in lang.
// Unknown codes use the internal error text.
func FailureText(lang langctx.Language, code string) string {
	texts, ok := failureTexts[code]
	if !ok {
		texts = failureTexts[CodeInternal]
	}
	if t, ok := texts[lang]; ok {
		return t
	}
	return texts[langctx.English]
}

// Fallback builds the deterministic message for req.
func Fallback(req Request) Message {
	lang := req.Language
	msg := Message{Type: req.Kind, Language: lang, Fallback: true}

	switch req.Kind {
	case KindClarify:
		reason := req.Reason
		if _, ok := clarifyTexts[reason]; !ok {
			reason = route.ReasonAmbiguous
		}
		t := pick(clarifyTexts[reason], lang)
		msg.Message = t.message
		msg.Question = t.question
		msg.BlocksSearch = true
		msg.SuggestedAction = ActionRefineQuery
		if reason == route.ReasonMissingLocation {
			msg.SuggestedAction = ActionShareLocation
		}
	case KindStop:
		msg.Message = pick(stopTexts, lang)
	case KindSummary:
		t := pick(summaryTexts, lang)
		if req.ResultCount == 0 {
			msg.Message = t.empty
			msg.SuggestedAction = ActionBroadenSearch
		} else {
			msg.Message = fmt.Sprintf(t.found, req.ResultCount)
		}
	case KindFailure:
		msg.Message = FailureText(lang, req.FailureCode)
		msg.SuggestedAction = ActionRetry
	}
	return msg
}

func pick[T any](table map[langctx.Language]T, lang langctx.Language) T {
	if t, ok := table[lang]; ok {
		return t
	}
	return table[langctx.English]
}
