package session

import (
	"errors"
	"fmt"

	"github.com/local/comesano/internal/ai"
)

const messagePrefix = "No se pudo analizar la imagen: "

func displayName(p ai.Provider) string {
	switch p {
	case ai.OpenAI:
		return "OpenAI"
	case ai.Gemini:
		return "Gemini"
	}
	return "el proveedor"
}

// UserMessage maps an analysis error to Spanish text for the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		mk *ai.MissingAPIKeyError
		ir *ai.InvalidResponseError
		mc *ai.MissingContentError
		ip *ai.InvalidPayloadError
		cd *CoolingDownError
	)
	switch {
	case errors.Is(err, ErrBusy):
		return "Ya hay un análisis en curso."
	case errors.Is(err, ErrNoPreviousRequest):
		return "No hay un análisis previo para reintentar."
	case errors.As(err, &cd):
		return fmt.Sprintf("Podrás reintentar en %ds.", cd.Remaining)
	case errors.As(err, &mk):
		return messagePrefix + fmt.Sprintf("falta la clave de API de %s.", displayName(mk.Provider))
	case ai.IsRateLimited(err):
		errors.As(err, &ir)
		return messagePrefix + fmt.Sprintf("%s alcanzó su límite de uso. Intenta de nuevo más tarde.", displayName(ir.Provider))
	case errors.As(err, &ir):
		return messagePrefix + fmt.Sprintf("%s respondió con un error (HTTP %d): %s", displayName(ir.Provider), ir.StatusCode, ir.Message)
	case errors.As(err, &mc):
		return messagePrefix + fmt.Sprintf("%s no devolvió contenido.", displayName(mc.Provider))
	case errors.As(err, &ip):
		return messagePrefix + fmt.Sprintf("la respuesta de %s no tiene el formato esperado.", displayName(ip.Provider))
	case ai.Kind(err) == ai.KindTimeout:
		return messagePrefix + "la solicitud tardó demasiado."
	}
	return messagePrefix + err.Error()
}
