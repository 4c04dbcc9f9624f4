package conversation

import (
	"fmt"
	"strings"

	"github.com/assusa/viabot/internal/titles"
)

// User-facing texts. Kept together so the whole voice of the bot can be
// reviewed in one place.
const (
	msgMenu = "Olá! Sou o assistente virtual. Como posso ajudar?\n" +
		"1 - Segunda via de boleto\n" +
		"2 - Fale conosco\n" +
		"3 - Link do site\n" +
		"4 - Excluir meus dados"

	msgMenuInvalid = "Não entendi. Por favor, responda com o número de uma das opções:\n" +
		"1 - Segunda via de boleto\n" +
		"2 - Fale conosco\n" +
		"3 - Link do site\n" +
		"4 - Excluir meus dados"

	msgLGPDNotice = "Para continuar, preciso do seu CPF. Ele será usado apenas para " +
		"localizar seus boletos e não será armazenado em texto claro, conforme a LGPD.\n" +
		"1 - Aceito, continuar\n" +
		"2 - Voltar ao menu"

	msgLGPDDeclined = "Tudo bem, seus dados não serão coletados."

	msgAskIdentifier = "Por favor, informe seu CPF (somente números)."

	msgAskIdentifierForDeletion = "Para excluir seus dados, informe o CPF cadastrado (somente números)."

	msgIdentifierInvalid = "CPF inválido. Confira os dígitos e envie novamente, por favor."

	msgBanksUnavailable = "Nossos sistemas de consulta estão indisponíveis no momento. " +
		"Tente novamente em alguns minutos."

	msgNoOpenTitles = "Não encontrei boletos em aberto para este CPF."

	msgAskFormat = "Como você prefere receber a segunda via?\n" +
		"1 - PDF por aqui mesmo\n" +
		"2 - Link do portal"

	msgFormatInvalid = "Responda 1 para PDF ou 2 para link, por favor."

	msgSelectionInvalid = "Opção inválida. Responda com o número de um dos boletos listados."

	msgConfirmInvalid = "Responda 1 para confirmar ou 2 para cancelar, por favor."

	msgCancelled = "Pedido cancelado."

	msgDocumentCaption = "Aqui está a segunda via do seu boleto."

	msgGenerateFailed = "Não consegui gerar a segunda via agora. " +
		"Tente novamente mais tarde ou fale conosco pela opção 2 do menu."

	msgAskContactMessage = "Escreva sua mensagem (até 500 caracteres) e nossa equipe " +
		"entrará em contato."

	msgContactTooLong = "Sua mensagem passou de 500 caracteres. Pode resumir e enviar de novo?"

	msgContactReceived = "Mensagem recebida! Nossa equipe responderá em breve."

	msgDataDeleted = "Pronto. Os registros associados ao seu CPF foram excluídos."

	msgDataDeletionFailed = "Não consegui concluir a exclusão agora. Tente novamente mais tarde."

	msgRateLimited = "Você enviou muitas mensagens em pouco tempo. Aguarde um instante e tente de novo."

	msgUnexpectedError = "Algo deu errado por aqui. Tente novamente, por favor."
)

func formatTitleList(list []titles.Title) string {
	var b strings.Builder
	b.WriteString("Encontrei os seguintes boletos em aberto:\n")
	for i, t := range list {
		fmt.Fprintf(&b, "%d - %s | R$ %.2f | vence %s\n",
			i+1, bankLabel(t.Bank), t.Amount, t.DueDate.Format("02/01/2006"))
	}
	b.WriteString("Responda com o número do boleto desejado.")
	return b.String()
}

func formatConfirmation(t titles.Title, format Format) string {
	what := "PDF por aqui"
	if format == FormatLink {
		what = "link do portal"
	}
	return fmt.Sprintf("Confirmar segunda via do boleto %s de R$ %.2f (vence %s), entrega por %s?\n1 - Sim\n2 - Não",
		bankLabel(t.Bank), t.Amount, t.DueDate.Format("02/01/2006"), what)
}

func formatSiteLink(url string) string {
	return "Acesse nosso portal: " + url
}

func bankLabel(b titles.Bank) string {
	switch b {
	case titles.BankSicoob:
		return "Sicoob"
	case titles.BankBradesco:
		return "Bradesco"
	default:
		return string(b)
	}
}
