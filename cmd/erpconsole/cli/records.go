package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/shared"
	"github.com/lojaerp/erp-console/internal/views"
)

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError(map[string]string{"id": "ID inválido: " + raw})
	}
	return id, nil
}

func newClientesCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "clientes", Short: "Cadastro de clientes"}
	cmd.AddCommand(
		newListCommand(rt, clientesEntity, nil),
		newClienteCreateCommand(rt),
		newClienteUpdateCommand(rt),
		newDeleteCommand(rt, "cliente", func(cmd *cobra.Command, id int64) error {
			return rt.api.Clientes.Delete(cmd.Context(), id)
		}),
		newClienteImportCommand(rt),
	)
	return cmd
}

type clienteFlags struct {
	nome, cpf, endereco, telefone, email string
}

func (f *clienteFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.nome, "nome", "", "nome completo")
	cmd.Flags().StringVar(&f.cpf, "cpf", "", "CPF (000.000.000-00)")
	cmd.Flags().StringVar(&f.endereco, "endereco", "", "endereço")
	cmd.Flags().StringVar(&f.telefone, "telefone", "", "telefone")
	cmd.Flags().StringVar(&f.email, "email", "", "e-mail")
}

// apply copies the flags the operator set onto c.
func (f *clienteFlags) apply(cmd *cobra.Command, c *erp.Cliente) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("nome", &c.Nome, f.nome)
	set("cpf", &c.CPF, f.cpf)
	set("endereco", &c.Endereco, f.endereco)
	set("telefone", &c.Telefone, f.telefone)
	set("email", &c.Email, f.email)
}

func newClienteCreateCommand(rt *runtime) *cobra.Command {
	var f clienteFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Cadastra um cliente",
		Args:  cobra.NoArgs,
	}
	f.bind(cmd)
	cmd.RunE = rt.guard(func(cmd *cobra.Command, _ []string) error {
		var c erp.Cliente
		f.apply(cmd, &c)
		created, err := rt.api.Clientes.Create(cmd.Context(), c)
		if err != nil {
			return err
		}
		return rt.printRecord(created, "Cliente %d: %s", created.ID, created.Nome)
	})
	return cmd
}

func newClienteUpdateCommand(rt *runtime) *cobra.Command {
	var f clienteFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Atualiza um cliente",
		Args:  cobra.ExactArgs(1),
	}
	f.bind(cmd)
	cmd.RunE = rt.guard(func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		current, err := rt.api.Clientes.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		f.apply(cmd, &current)
		updated, err := rt.api.Clientes.Update(cmd.Context(), id, current)
		if err != nil {
			return err
		}
		return rt.printRecord(updated, "Cliente %d: %s", updated.ID, updated.Nome)
	})
	return cmd
}

func newClienteImportCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "import CAMINHO",
		Short: "Importa clientes de um CSV disponível no servidor",
		Args:  cobra.ExactArgs(1),
		RunE: rt.guard(func(cmd *cobra.Command, args []string) error {
			res, err := rt.api.Clientes.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(res)
			}
			for _, e := range res.Erros {
				rt.out.line("  %s", e)
			}
			return nil
		}),
	}
}

func newDeleteCommand(rt *runtime, label string, del func(cmd *cobra.Command, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Exclui um " + label,
		Args:  cobra.ExactArgs(1),
		RunE: rt.guard(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return del(cmd, id)
		}),
	}
}

func (rt *runtime) printRecord(v any, format string, args ...any) error {
	if rt.out.json {
		return rt.out.encode(v)
	}
	rt.out.line(format, args...)
	return nil
}

func newProdutosCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "produtos", Short: "Catálogo de produtos"}
	cmd.AddCommand(
		newListCommand(rt, produtosEntity, func(cmd *cobra.Command) filterFunc {
			categoria := cmd.Flags().String("categoria", "", "filtra pela categoria")
			return func() (map[string]string, error) {
				return map[string]string{views.FilterCategoria: *categoria}, nil
			}
		}),
		newProdutoCreateCommand(rt),
		newProdutoUpdateCommand(rt),
		newDeleteCommand(rt, "produto", func(cmd *cobra.Command, id int64) error {
			return rt.api.Produtos.Delete(cmd.Context(), id)
		}),
		newCategoriasCommand(rt),
	)
	return cmd
}

type produtoFlags struct {
	nome, codigo, preco, categoria, descricao string
}

func (f *produtoFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.nome, "nome", "", "nome")
	cmd.Flags().StringVar(&f.codigo, "codigo", "", "código")
	cmd.Flags().StringVar(&f.preco, "preco", "", "preço, ex.: 19.90")
	cmd.Flags().StringVar(&f.categoria, "categoria", "", "categoria")
	cmd.Flags().StringVar(&f.descricao, "descricao", "", "descrição")
}

func (f *produtoFlags) apply(cmd *cobra.Command, p *erp.Produto) error {
	changed := cmd.Flags().Changed
	if changed("nome") {
		p.Nome = f.nome
	}
	if changed("codigo") {
		p.Codigo = f.codigo
	}
	if changed("categoria") {
		p.Categoria = f.categoria
	}
	if changed("descricao") {
		p.Descricao = f.descricao
	}
	if changed("preco") {
		preco, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(f.preco), ",", "."))
		if err != nil {
			return shared.NewValidationError(map[string]string{"preco": "Preço inválido"})
		}
		p.Preco = preco
	}
	return nil
}

func newProdutoCreateCommand(rt *runtime) *cobra.Command {
	var f produtoFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Cadastra um produto",
		Args:  cobra.NoArgs,
	}
	f.bind(cmd)
	cmd.RunE = rt.guard(func(cmd *cobra.Command, _ []string) error {
		var p erp.Produto
		if err := f.apply(cmd, &p); err != nil {
			return err
		}
		created, err := rt.api.Produtos.Create(cmd.Context(), p)
		if err != nil {
			return err
		}
		return rt.printRecord(created, "Produto %d: %s (%s)", created.ID, created.Nome, rt.out.money(created.Preco))
	})
	return cmd
}

func newProdutoUpdateCommand(rt *runtime) *cobra.Command {
	var f produtoFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Atualiza um produto",
		Args:  cobra.ExactArgs(1),
	}
	f.bind(cmd)
	cmd.RunE = rt.guard(func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		current, err := rt.api.Produtos.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := f.apply(cmd, &current); err != nil {
			return err
		}
		updated, err := rt.api.Produtos.Update(cmd.Context(), id, current)
		if err != nil {
			return err
		}
		return rt.printRecord(updated, "Produto %d: %s (%s)", updated.ID, updated.Nome, rt.out.money(updated.Preco))
	})
	return cmd
}

func newCategoriasCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "categorias",
		Short: "Lista as categorias do catálogo",
		Args:  cobra.NoArgs,
		RunE: rt.guard(func(cmd *cobra.Command, _ []string) error {
			view, err := views.NewProdutosView(rt.deps(0), nil, nil)
			if err != nil {
				return err
			}
			defer view.Close()
			cats, err := view.Categories(cmd.Context())
			if err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(cats)
			}
			for _, c := range cats {
				rt.out.line("%s", c)
			}
			return nil
		}),
	}
}

func newEstoqueCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "estoque", Short: "Níveis de estoque"}
	cmd.AddCommand(
		newListCommand(rt, estoqueEntity, func(cmd *cobra.Command) filterFunc {
			low := cmd.Flags().Bool("low-stock", false, "somente itens abaixo do mínimo")
			return func() (map[string]string, error) {
				if !*low {
					return nil, nil
				}
				return map[string]string{views.FilterLowStock: "true"}, nil
			}
		}),
		newEstoqueAdjustCommand(rt),
	)
	return cmd
}

func newEstoqueAdjustCommand(rt *runtime) *cobra.Command {
	var quantidade, minima int
	cmd := &cobra.Command{
		Use:   "adjust ID",
		Short: "Ajusta a quantidade ou o mínimo de um item de estoque",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&quantidade, "quantidade", 0, "quantidade em estoque")
	cmd.Flags().IntVar(&minima, "minima", 0, "quantidade mínima")
	cmd.RunE = rt.guard(func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("quantidade") && !cmd.Flags().Changed("minima") {
			return fmt.Errorf("estoque adjust: informe --quantidade ou --minima")
		}
		row, err := rt.api.Estoque.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("quantidade") {
			row.Quantidade = quantidade
		}
		if cmd.Flags().Changed("minima") {
			row.QuantidadeMinima = minima
		}
		updated, err := rt.api.Estoque.Update(cmd.Context(), id, row)
		if err != nil {
			return err
		}
		return rt.printRecord(updated, "Estoque %d: %d (mínimo %d) %s", updated.ID, updated.Quantidade, updated.QuantidadeMinima, updated.Status())
	})
	return cmd
}

func newVendasCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "vendas", Short: "Vendas"}
	cmd.AddCommand(
		newListCommand(rt, vendasEntity, func(cmd *cobra.Command) filterFunc {
			lo := cmd.Flags().String("valor-min", "", "total mínimo")
			hi := cmd.Flags().String("valor-max", "", "total máximo")
			return func() (map[string]string, error) {
				return views.ValorFilters(*lo, *hi)
			}
		}),
		newVendaRegisterCommand(rt),
		newVendaShowCommand(rt),
		newDeleteCommand(rt, "venda", func(cmd *cobra.Command, id int64) error {
			return rt.api.Vendas.Delete(cmd.Context(), id)
		}),
	)
	return cmd
}

// parseItem reads PRODUTO:QUANTIDADE.
func parseItem(raw string) (erp.VendaDraftItem, error) {
	produto, qtd, ok := strings.Cut(raw, ":")
	if !ok {
		return erp.VendaDraftItem{}, shared.NewValidationError(map[string]string{"itens": "Item inválido: " + raw + " (use PRODUTO:QUANTIDADE)"})
	}
	id, err := parseID(produto)
	if err != nil {
		return erp.VendaDraftItem{}, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(qtd))
	if err != nil {
		return erp.VendaDraftItem{}, shared.NewValidationError(map[string]string{"itens": "Quantidade inválida: " + raw})
	}
	return erp.VendaDraftItem{ProdutoID: id, Quantidade: n}, nil
}

func newVendaRegisterCommand(rt *runtime) *cobra.Command {
	var (
		cliente int64
		items   []string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Registra uma venda",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Int64Var(&cliente, "cliente", 0, "ID do cliente")
	cmd.Flags().StringArrayVar(&items, "item", nil, "PRODUTO:QUANTIDADE (repetível)")
	cmd.RunE = rt.guard(func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		draft := erp.VendaDraft{ClienteID: cliente}
		for _, raw := range items {
			item, err := parseItem(raw)
			if err != nil {
				return err
			}
			draft.Itens = append(draft.Itens, item)
		}
		produtos, err := rt.api.Produtos.All(ctx)
		if err != nil {
			return err
		}
		stock, err := rt.api.Estoque.All(ctx)
		if err != nil {
			return err
		}
		venda, err := rt.api.Vendas.Register(ctx, draft, erp.IndexProdutos(produtos), erp.IndexEstoque(stock))
		if err != nil {
			return err
		}
		return rt.printRecord(venda, "Venda %d: %s", venda.ID, rt.out.money(venda.Total))
	})
	return cmd
}

func newVendaShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Mostra os itens de uma venda",
		Args:  cobra.ExactArgs(1),
		RunE: rt.guard(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view, err := views.NewVendasView(rt.deps(0), nil, nil)
			if err != nil {
				return err
			}
			defer view.Close()
			row, err := view.Details(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rt.out.json {
				return rt.out.encode(row)
			}
			rt.out.line("Venda %d  %s  %s", row.ID, formatDate(row.Venda), row.ClienteNome)
			lines := make([][]string, 0, len(row.Linhas))
			for _, l := range row.Linhas {
				lines = append(lines, []string{l.ProdutoNome, strconv.Itoa(l.Quantidade), rt.out.money(l.PrecoUnitario), rt.out.money(l.Subtotal)})
			}
			if err := rt.out.table([]string{"PRODUTO", "QTD", "UNITÁRIO", "SUBTOTAL"}, lines); err != nil {
				return err
			}
			rt.out.line("Total: %s", rt.out.money(row.Total))
			return nil
		}),
	}
}
