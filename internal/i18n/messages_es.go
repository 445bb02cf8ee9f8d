package i18n

// spanishMessages contains all Spanish translations.
var spanishMessages = map[string]string{
	// Error messages
	"error.generic":              "Algo salió mal. Intentá de nuevo.",
	"error.wrong_channel":        "Este canal no está aceptando comandos.",
	"error.not_in_voice":         "Mae mamaste! No estás en un canal de voz",
	"error.not_same_channel":     "Mae no estás en el mismo canal de voz que %s.",
	"error.bot_not_connected":    "Mae el %s no está en ningún canal de voz.",
	"error.not_playing":          "%s no está tocando ninguna canción.",
	"error.not_paused":           "%s no está en pausa.",
	"error.connect_failed":       "%s no se pudo conectar al canal de voz.",
	"error.resolve_failed":       "Mae no se pudo descargar la canción.",
	"error.playlist_unavailable": "Mae no se pudo abrir la playlist, es privada o no existe!",
	"error.playlist_empty":       "Mae esa playlist no tiene canciones!",
	"error.playnext_playlist":    "Este comando no procesa listas, para eso use el comando play.",
	"error.move_args":            "Woa woa alto ahí, este comando solo permite a lo más 1 o 2 parámetros.",
	"error.move_position":        "Los parámetros deben ser mayores a 0!",
	"error.move_range":           "No hay ninguna canción en esa posición.",
	"error.track_failed":         "Saltando %s, no se pudo reproducir.",

	// Play messages
	"play.usage":               "Uso: %splay <url o texto a buscar>",
	"play.added":               "%s añadida a la cola en la posición %d ヾ(•ω•`)o",
	"play.processing_playlist": "Procesando la playlist...",
	"play.playlist_added":      "%d canciones añadidas a la cola ヾ(•ω•`)o",
	"playnext.added":           "%s añadida al inicio de la cola ヾ(•ω•`)o",

	// Queue messages
	"queue.title":       "Lista de canciones en cola",
	"queue.field_songs": "Canciones",
	"queue.totals":      "**%d canciones en cola | %s de duración**",
	"queue.totals_one":  "**%d canción en cola | %s de duración**",
	"queue.footer":      "Página %d/%d",
	"queue.empty":       "Actualmente no hay música en la cola 💔",

	// Playback messages
	"skip.done":           "Canción saltada.",
	"shuffle.done":        "Le hiciste brrrr a esa cola c:",
	"pause.done":          "Al %s se le paró... la canción (╹ڡ╹ )",
	"resume.done":         "El %s te seguirá tocando... la canción ♪(´▽｀)",
	"move.done":           "%s reprogramada a la posición %d! ✪ ω ✪",
	"join.done":           "%s se unió a tu canal de voz.",
	"disconnect.done":     "%s salió del canal de voz.",
	"nowplaying.none":     "Actualmente no se está tocando ninguna canción.",
	"nowplaying.current":  "Canción actual",
	"nowplaying.duration": "Duración",
	"nowplaying.added_by": "Añadida por",

	// Help
	"help.title": "Click aquí para ver la documentación de comandos del bot de música",
}
