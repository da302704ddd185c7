package orchestrate

// Canned replies for flow-control turns. Handlers own everything
// content-bearing; these cover authentication and failure paths.
const (
	msgCredentialRequest = "Para ayudarte con eso primero necesito verificar tu identidad. ¿Me pasás tu número de documento (sin puntos)?"
	msgCredentialInvalid = "Ese documento no figura en nuestros registros. Verificá el número e intentá de nuevo."
	msgForgotten         = "Listo, eliminé tus datos de esta conversación. La próxima vez te voy a pedir el documento de nuevo."
	msgWelcomeBack       = "¡Gracias! Ya verifiqué tu identidad. ¿En qué te puedo ayudar?"
	msgApology           = "Perdón, tuve un problema para procesar tu consulta. Probá de nuevo en unos minutos."
	msgEscalated         = "Derivé tu consulta a una persona del equipo para que te contacte a la brevedad."
)
