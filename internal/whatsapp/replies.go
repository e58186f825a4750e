package whatsapp

import (
	"fmt"
	"strings"

	"github.com/hackgods/dental-booking/internal/schedule"
)

type Command int

const (
	CommandHelp Command = iota
	CommandConfirm
	CommandCancel
	CommandReschedule
)

// ParseCommand maps a patient's reply to what they asked for.
func ParseCommand(text string) Command {
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "1", "CONFIRMAR":
		return CommandConfirm
	case "2", "CANCELAR":
		return CommandCancel
	case "REAGENDAR", "RESCHEDULE":
		return CommandReschedule
	default:
		return CommandHelp
	}
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// LongDate formats d the way patients read it, e.g. "18 de octubre de 2026".
func LongDate(d schedule.Date) string {
	return fmt.Sprintf("%d de %s de %d", d.Day(), spanishMonths[d.Month()-1], d.Year())
}

const (
	ReplyNotFound = "No encontramos una cita activa con este número."
	ReplyCanceled = "Tu cita ha sido cancelada. Si deseas reagendar, visita nuestro sitio o responde REAGENDAR."
	ReplyHelp     = "Responde 1 para confirmar, 2 para cancelar, o REAGENDAR para cambiar tu cita."
)

func ReplyConfirmed(d schedule.Date, at schedule.Clock) string {
	return fmt.Sprintf("Tu cita del %s a las %s ha sido confirmada.", LongDate(d), at)
}

func ReplyReschedule(siteURL string) string {
	return fmt.Sprintf("Para reagendar tu cita entra a: %s/agendar", strings.TrimRight(siteURL, "/"))
}
