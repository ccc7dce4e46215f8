package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// FalaBRURL é o portal federal onde as denúncias são registradas.
const FalaBRURL = "https://falabr.cgu.gov.br/web"

// Section é um bloco de texto de uma página institucional.
type Section struct {
	Titulo     string   `json:"titulo"`
	Paragrafos []string `json:"paragrafos,omitempty"`
	Itens      []Item   `json:"itens,omitempty"`
}

// Item é um destaque dentro de uma seção.
type Item struct {
	Titulo string `json:"titulo"`
	Texto  string `json:"texto"`
}

// ReportPage orienta o registro da denúncia no Fala.BR.
type ReportPage struct {
	Titulo     string   `json:"titulo"`
	Introducao string   `json:"introducao"`
	Link       string   `json:"link"`
	Passos     []string `json:"passos"`
}

// AboutPage é o conteúdo de "Sobre nós".
type AboutPage struct {
	Titulo    string    `json:"titulo"`
	Subtitulo string    `json:"subtitulo"`
	Secoes    []Section `json:"secoes"`
}

var reportPage = ReportPage{
	Titulo: "Como realizar uma denúncia?",
	Introducao: "Todas as denúncias de instituições federais, como a UFU, devem ser feitas pelo portal Fala.BR do Governo Federal, " +
		"a partir do qual você pode seguir as instruções para registrar sua denúncia de forma anônima e segura.",
	Link: FalaBRURL,
	Passos: []string{
		"Acesse o portal Fala.BR.",
		"Entre em 'Ouvidoria'.",
		"Escolha a opção de 'Denúncia'.",
		"Escolha o tipo de denúncia desejado e adequado para o seu caso.",
		"Preencha os campos obrigatórios, fornecendo o máximo de detalhes possível.",
		"Revise as informações e envie sua denúncia.",
	},
}

var aboutPage = AboutPage{
	Titulo:    "Apoio UFU: Combatendo o Racismo na Universidade",
	Subtitulo: "Uma aplicação dedicada a facilitar denúncias de racismo e promover um ambiente acadêmico mais justo e inclusivo.",
	Secoes: []Section{
		{
			Titulo: "Nossa Missão",
			Paragrafos: []string{
				"O Apoio UFU nasceu da crescente necessidade de uma abordagem mais eficaz para registrar e explorar incidentes de " +
					"discriminação racial na Universidade Federal de Uberlândia (UFU). Nosso objetivo principal é facilitar o processo " +
					"de denúncia, permitindo que alunos, professores e funcionários relatem incidentes de forma anônima ou identificada, " +
					"garantindo segurança e confidencialidade.",
				"Acreditamos que, ao simplificar o ato de denunciar, podemos não apenas tornar as ações de reclamação mais claras, " +
					"mas também dar um passo adiante para estabelecer políticas de combate ao racismo na instituição, promovendo um " +
					"ambiente educacional verdadeiramente favorável e equitativo.",
			},
		},
		{
			Titulo: "Por Que o Apoio UFU É Importante?",
			Itens: []Item{
				{
					Titulo: "Combate ao Racismo Estrutural",
					Texto: "O racismo é uma realidade persistente em diversos setores, incluindo o educacional. O Apoio UFU atua como " +
						"uma ferramenta vital para identificar padrões de discriminação e auxiliar na criação de políticas internas " +
						"eficazes contra o racismo estrutural.",
				},
				{
					Titulo: "Anonimato e Segurança",
					Texto: "Muitas vítimas de racismo temem represálias ao denunciar. Nossa plataforma garante o anonimato e a " +
						"segurança dos dados, encorajando mais pessoas a relatarem incidentes e construindo um panorama mais " +
						"completo das práticas racistas.",
				},
				{
					Titulo: "Dados para Ação",
					Texto: "Além de coletar denúncias, o Apoio UFU gera relatórios gerenciais detalhados. Esses dados são cruciais " +
						"para a universidade identificar fatores repetitivos de discriminação e implementar ações corretivas e proativas.",
				},
			},
		},
	},
}

// Report devolve o passo a passo de denúncia.
func Report(c *gin.Context) {
	c.JSON(http.StatusOK, reportPage)
}

// About devolve o conteúdo institucional.
func About(c *gin.Context) {
	c.JSON(http.StatusOK, aboutPage)
}

const fallbackShell = `<!doctype html>
<html lang="pt-BR">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Apoio UFU</title></head>
<body><div id="root"></div><noscript>Ative o JavaScript para usar o Apoio UFU.</noscript></body>
</html>`

// SPA serve o shell da aplicação web. Sem build do front-end, responde um
// shell mínimo.
func SPA(index string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if index != "" {
			if st, err := os.Stat(index); err == nil && !st.IsDir() {
				c.File(index)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fallbackShell))
	}
}
